package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fleetroster/internal/tui"
)

var (
	watchLogFile  string
	watchDebugLog string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live terminal view of the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("watch needs an interactive terminal; use serve --print-only instead")
		}
		var logOut io.Writer = io.Discard
		if watchDebugLog != "" {
			f, err := os.OpenFile(watchDebugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			logOut = f
		}
		a, err := loadApp(logOut)
		if err != nil {
			return err
		}
		defer a.close()

		sw, lw, cleanup, err := quietSinks(a.cfg, watchLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr, err := a.newManager(a.requestContext(ctx, "watch"), sw, lw)
		if err != nil {
			return err
		}
		go mgr.Run(ctx)

		err = tui.Run(ctx, mgr,
			tui.WithInterval(a.cfg.RefreshInterval/4),
			tui.WithShipNames(a.ships),
			tui.WithCharacterNames(a.chars))
		stop()
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Path to export snapshots (JSONL) while watching")
	watchCmd.Flags().StringVar(&watchDebugLog, "debug-log", "", "Write logs to this file instead of discarding them")
}
