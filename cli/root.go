// Package cli is the pixel-auto command line.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soocke/pixel-auto/app"
	"github.com/soocke/pixel-auto/config"
	"github.com/soocke/pixel-auto/debug"
	"github.com/soocke/pixel-auto/domain/automation"
	"github.com/soocke/pixel-auto/observability"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// env carries state shared by the subcommands of one invocation.
type env struct {
	cfgFile   string
	cfg       *config.Config
	logger    *zap.Logger
	stopDebug func()

	// build opens the host and controller; tests replace it.
	build func(cfg *config.Config, logger *zap.Logger) (*app.Container, error)
}

// NewRootCmd returns the command tree wired to the real desktop.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&env{build: app.BuildContainer})
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "pixel-auto",
		Short:         "Locate images on screen and drive the pointer and keyboard.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(e.cfgFile)
			e.cfg = cfg
			e.logger = observability.NewLogger(cfg.Log, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			if cfg.Debug {
				e.stopDebug = debug.StartRuntimeLogger(5*time.Second, e.logger)
			}
			e.logger.Debug("config loaded", zap.String("file", e.cfgFile))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.stopDebug != nil {
				e.stopDebug()
				e.stopDebug = nil
			}
			return observability.Sync(e.logger)
		},
	}
	root.PersistentFlags().StringVarP(&e.cfgFile, "config", "c", "", "config file (yaml or json)")
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.AddCommand(
		newLocateCmd(e),
		newClickCmd(e),
		newDragCmd(e),
		newTypeCmd(e),
		newCaptureCmd(e),
		newDemoCmd(e),
		newMigrateCmd(e),
		newConfigCmd(e),
	)
	return root
}

// withController runs fn against a freshly built container.
func (e *env) withController(fn func(c *app.Container) error) error {
	c, err := e.build(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			e.logger.Warn("release desktop", zap.Error(cerr))
		}
	}()
	return fn(c)
}

// Execute runs the CLI and exits non-zero on failure. A missing display is
// fatal.
func Execute() {
	e := &env{build: app.BuildContainer}
	root := newRootCmd(e)
	err := root.Execute()
	if err == nil {
		return
	}
	logger := e.logger
	if logger == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if e.stopDebug != nil {
		e.stopDebug()
	}
	if errors.Is(err, automation.ErrNoDisplay) {
		logger.Fatal("no display available", zap.Error(err))
	}
	logger.Error("command failed", zap.Error(err))
	_ = observability.Sync(logger)
	os.Exit(1)
}
