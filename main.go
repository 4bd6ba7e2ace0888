package main

import "github.com/soocke/pixel-auto/cli"

func main() {
	cli.Execute()
}
