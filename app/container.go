package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/soocke/pixel-auto/config"
	"github.com/soocke/pixel-auto/domain/action"
	"github.com/soocke/pixel-auto/domain/automation"
	"github.com/soocke/pixel-auto/domain/capture"
	"github.com/soocke/pixel-auto/domain/cards"
)

// Container holds the components one CLI invocation works with.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Host       automation.Host
	Controller *automation.Controller

	release func() error
}

// ControllerOptions maps configuration onto controller options.
func ControllerOptions(cfg *config.Config) (automation.Options, error) {
	bounds, err := automation.ParseBoundsPolicy(cfg.Input.BoundsPolicy)
	if err != nil {
		return automation.Options{}, err
	}
	tween, err := automation.TweenByName(cfg.Input.Tween)
	if err != nil {
		return automation.Options{}, err
	}
	return automation.Options{
		Bounds:         bounds,
		StepsPerSecond: cfg.Input.StepsPerSecond,
		Tween:          tween,
		Pause:          cfg.Input.Pause,
		ArtifactDir:    cfg.Capture.Dir,
		Match:          capture.OptionsFromConfig(cfg.Match),
	}, nil
}

// BuildContainer opens the desktop and builds a controller on it. The
// returned container must be closed to release the desktop.
func BuildContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	desk, err := action.OpenDesktop(action.DesktopOptions{FailSafe: cfg.Input.FailSafe}, logger)
	if err != nil {
		return nil, err
	}
	c, err := NewContainer(cfg, logger, desk, desk.Close)
	if err != nil {
		return nil, errors.Join(err, desk.Close())
	}
	return c, nil
}

// NewContainer builds a controller on an existing host. release, if non-nil,
// is called by Close. tweaks adjust the options derived from cfg.
func NewContainer(cfg *config.Config, logger *zap.Logger, host automation.Host, release func() error, tweaks ...func(*automation.Options)) (*Container, error) {
	opts, err := ControllerOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	ctl, err := automation.New(host, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Container{Config: cfg, Logger: logger, Host: host, Controller: ctl, release: release}, nil
}

// Close releases the host.
func (c *Container) Close() error {
	if c == nil || c.release == nil {
		return nil
	}
	release := c.release
	c.release = nil
	return release()
}

// MigrateCards loads the configured catalog and copies it into the
// configured card store.
func MigrateCards(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cards.Report, error) {
	catalog, err := cards.LoadCatalog(cfg.Migrate.Catalog)
	if err != nil {
		return cards.Report{}, err
	}
	store, err := cards.Open(ctx, cfg.Migrate.Driver, cfg.Migrate.DSN, logger)
	if err != nil {
		return cards.Report{}, err
	}
	defer store.Close()
	return cards.Migrate(ctx, store, catalog, logger)
}
