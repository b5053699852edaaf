package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetroster/internal/admin"
)

var (
	servePrintOnly bool
	serveLogFile   string
	serveAddr      string
	serveNoAdmin   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mirror the fleet and serve the operator API",
	Long:  "serve refreshes the roster periodically, forwards snapshots and loss estimates to the configured sinks and exposes the admin HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stdout)
		if err != nil {
			return err
		}
		defer a.close()

		sw, lw, cleanup, err := newSinks(a.cfg, servePrintOnly, serveLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr, err := a.newManager(a.requestContext(ctx, "serve"), sw, lw)
		if err != nil {
			return err
		}

		if !serveNoAdmin {
			addr := a.cfg.Admin.Addr
			if serveAddr != "" {
				addr = serveAddr
			}
			srv := admin.NewServer(mgr, a.logger)
			go func() {
				if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("admin server failed", "err", err)
					stop()
				}
			}()
		}

		mgr.Run(ctx)
		a.logger.Info("fleet roster stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Print snapshots to STDOUT instead of writing to GreptimeDB")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Path to export snapshots (JSONL); loss records go to <path>.loss")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Admin API listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveNoAdmin, "no-admin", false, "Do not start the admin API")
}
