package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/display"
	"github.com/atharvap8/intelliverter/internal/level"
	wlog "github.com/atharvap8/intelliverter/internal/log"
)

func newStateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current water level and exit",
		Long: `state reads the level sensor only. Output lines are left alone so it
is safe to run next to the daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log, _, err := wlog.New(appID, cfg.LogLevel)
			if err != nil {
				return err
			}

			clk := clock.Real{}
			var src level.Source
			if cfg.Hardware.Fake {
				src = level.NewTub(clk, cfg.Calibration(), func() (bool, bool) { return false, false })
			} else {
				s, err := openSensor(cfg)
				if err != nil {
					return err
				}
				defer s.Close()
				src = s
			}
			return printState(cmd.Context(), cmd.OutOrStdout(), cfg, src, clk, log)
		},
	}
}

func printState(ctx context.Context, w io.Writer, cfg config.Config, src level.Source, clk clock.Clock, log *zap.SugaredLogger) error {
	a := level.NewAdapter(src, cfg.Calibration(), clk, log)
	liters, err := a.ReadLitersAveraged(ctx, cfg.Sensor.Samples, cfg.Sensor.SampleDelay)
	if err != nil {
		return fmt.Errorf("read level: %w", err)
	}

	lcd := display.New(cfg.Display.Cols, cfg.Display.Rows)
	lcd.SetCursor(0, 0)
	lcd.Print("Water Level")
	lcd.SetCursor(0, 1)
	lcd.Print(fmt.Sprintf("%.2f L", liters))
	cols, _ := lcd.Size()
	fmt.Fprint(w, display.Render(lcd.Lines(), cols))

	last, _ := a.Last()
	fmt.Fprintf(w, "Level: %.2f L (raw %.3f)\n", liters, last.Raw)
	fmt.Fprintf(w, "Fill target: %.2f L, drain complete: %.2f L\n", cfg.Levels.FillTarget, cfg.Levels.DrainComplete)
	return nil
}
