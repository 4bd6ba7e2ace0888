package app

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soocke/pixel-auto/config"
	"github.com/soocke/pixel-auto/domain/automation"
	"github.com/soocke/pixel-auto/domain/automation/hosttest"
)

func TestControllerOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Input.BoundsPolicy = "clamp"
	cfg.Input.Tween = "ease-in-out"
	cfg.Match.Stride = 3

	opts, err := ControllerOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, automation.BoundsClamp, opts.Bounds)
	assert.Equal(t, 100, opts.StepsPerSecond)
	assert.Equal(t, 500*time.Millisecond, opts.Pause)
	assert.Equal(t, 3, opts.Match.NCC.Stride)
	assert.Equal(t, 0.99, opts.Match.StopOnScore)
	assert.InDelta(t, 0.5, opts.Tween(0.5), 1e-9)

	cfg.Input.BoundsPolicy = ""
	_, err = ControllerOptions(cfg)
	require.Error(t, err)
}

func TestContainer_CloseReleasesOnce(t *testing.T) {
	var released int
	c, err := NewContainer(config.DefaultConfig(), zaptest.NewLogger(t), hosttest.NewHost(640, 480), func() error {
		released++
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, released)
}

func TestDemo_WalksSquareAndCaptures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Capture.Dir = t.TempDir()
	host := hosttest.NewHost(1920, 1080)
	clock := hosttest.NewClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	c, err := NewContainer(cfg, zaptest.NewLogger(t), host, nil, func(o *automation.Options) { o.Clock = clock })
	require.NoError(t, err)

	path, err := Demo(c.Controller)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Capture.Dir, "screenshot_20240102-030411.png"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	var clicks []image.Point
	for _, e := range host.EventsOf(hosttest.Down) {
		clicks = append(clicks, image.Pt(e.X, e.Y))
	}
	assert.Equal(t, []image.Point{{860, 440}, {1060, 440}, {1060, 640}, {860, 640}}, clicks)
}

func TestMigrateCards(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Migrate.Catalog = filepath.Join(dir, "SelectedCards.json")
	cfg.Migrate.DSN = filepath.Join(dir, "db", "CardRepository.db")
	require.NoError(t, os.WriteFile(cfg.Migrate.Catalog, []byte(`{"cards":[
		{"importPath":"../components/A.astro","componentProps":{"title":"A"}},
		{"importPath":"../components/B.astro","title":"B","componentProps":{"n":1}}]}`), 0o644))

	rep, err := MigrateCards(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Added)

	rep, err = MigrateCards(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Added)
	assert.Equal(t, 2, rep.Skipped)
}
