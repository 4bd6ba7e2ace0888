package cli

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soocke/pixel-auto/app"
	"github.com/soocke/pixel-auto/domain/automation"
)

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, &automation.Error{Op: "parse", Kind: automation.KindInvalidArgument, Err: fmt.Errorf("coordinate %q: %w", a, err)}
		}
		out[i] = n
	}
	return out, nil
}

// parseRegion reads "left,top,width,height".
func parseRegion(s string) (*image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &automation.Error{Op: "parse", Kind: automation.KindInvalidArgument, Err: fmt.Errorf("region %q: want left,top,width,height", s)}
	}
	v, err := parseInts(parts)
	if err != nil {
		return nil, err
	}
	r := image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3])
	if v[2] <= 0 || v[3] <= 0 {
		return nil, &automation.Error{Op: "parse", Kind: automation.KindInvalidArgument, Err: fmt.Errorf("region %q: empty", s)}
	}
	return &r, nil
}

// durationFlag returns the flag value when set on the command line, else def.
func durationFlag(cmd *cobra.Command, name string, def time.Duration) time.Duration {
	if cmd.Flags().Changed(name) {
		d, _ := cmd.Flags().GetDuration(name)
		return d
	}
	return def
}

func newLocateCmd(e *env) *cobra.Command {
	var confidence float64
	var click bool
	cmd := &cobra.Command{
		Use:   "locate <image>",
		Short: "Find a reference image on screen and print its center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("confidence") {
				confidence = e.cfg.Match.Confidence
			}
			target, err := automation.LoadTarget(args[0], confidence)
			if err != nil {
				return err
			}
			return e.withController(func(c *app.Container) error {
				m, found, err := c.Controller.Locate(target)
				if err != nil {
					return err
				}
				if !found {
					fmt.Fprintln(cmd.OutOrStdout(), "not found")
					return nil
				}
				p := m.Center()
				fmt.Fprintf(cmd.OutOrStdout(), "%d %d %.4f\n", p.X, p.Y, m.Score)
				if click {
					return c.Controller.MoveAndClick(p.X, p.Y, e.cfg.Input.MoveDuration)
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", automation.DefaultConfidence, "minimum match score in (0,1]")
	cmd.Flags().BoolVar(&click, "click", false, "click the match center when found")
	return cmd
}

func newClickCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "click <x> <y>",
		Short: "Move the pointer smoothly to (x, y) and click",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseInts(args)
			if err != nil {
				return err
			}
			d := durationFlag(cmd, "duration", e.cfg.Input.MoveDuration)
			return e.withController(func(c *app.Container) error {
				return c.Controller.MoveAndClick(v[0], v[1], d)
			})
		},
	}
	cmd.Flags().Duration("duration", 0, "travel time (default from config)")
	return cmd
}

func newDragCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drag <startX> <startY> <endX> <endY>",
		Short: "Drag with the primary button from start to end",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseInts(args)
			if err != nil {
				return err
			}
			d := durationFlag(cmd, "duration", e.cfg.Input.DragDuration)
			return e.withController(func(c *app.Container) error {
				return c.Controller.DragTo(v[0], v[1], v[2], v[3], d)
			})
		},
	}
	cmd.Flags().Duration("duration", 0, "total drag time (default from config)")
	return cmd
}

func newTypeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "type <text>",
		Short: "Type text one keystroke at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := durationFlag(cmd, "interval", e.cfg.Input.TypeInterval)
			return e.withController(func(c *app.Container) error {
				return c.Controller.TypeText(args[0], interval)
			})
		},
	}
	cmd.Flags().Duration("interval", 0, "delay between keystrokes (default from config)")
	return cmd
}

func newCaptureCmd(e *env) *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save a screenshot of the screen or a region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r *image.Rectangle
			if region != "" {
				var err error
				if r, err = parseRegion(region); err != nil {
					return err
				}
			}
			return e.withController(func(c *app.Container) error {
				path, err := c.Controller.CaptureScreen(r)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "left,top,width,height")
	return cmd
}

func newDemoCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Click the corners of a square around the screen center, then capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withController(func(c *app.Container) error {
				path, err := app.Demo(c.Controller)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the card catalog into the card repository, skipping duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *e.cfg
			if v, _ := cmd.Flags().GetString("catalog"); v != "" {
				cfg.Migrate.Catalog = v
			}
			if v, _ := cmd.Flags().GetString("driver"); v != "" {
				cfg.Migrate.Driver = v
			}
			if v, _ := cmd.Flags().GetString("dsn"); v != "" {
				cfg.Migrate.DSN = v
			}
			rep, err := app.MigrateCards(cmd.Context(), &cfg, e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d, skipped %d\n", rep.Added, rep.Skipped)
			return nil
		},
	}
	cmd.Flags().String("catalog", "", "catalog JSON path (default from config)")
	cmd.Flags().String("driver", "", "sqlite3 or postgres (default from config)")
	cmd.Flags().String("dsn", "", "database path or connection string (default from config)")
	return cmd
}

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "write <path>",
		Short: "Write the effective configuration to a yaml or json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.cfg.Save(args[0]); err != nil {
				return err
			}
			e.logger.Info("config written", zap.String("path", args[0]))
			return nil
		},
	})
	return cmd
}
