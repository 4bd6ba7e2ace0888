//go:build !windows && !linux

package action

import (
	"fmt"
	"runtime"
)

func newDriver() (driver, error) {
	return nil, fmt.Errorf("action: input injection not implemented on %s", runtime.GOOS)
}
