package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fleetroster/internal/manager"
)

var (
	formationMaxPerSquad   int
	formationLocationMatch bool
	formationSquads        int
	formationShips         []string

	kickDelay  time.Duration
	motdAppend bool
)

// runOnce loads the app, builds a manager without sinks and runs fn with a
// request-scoped context.
func runOnce(op string, fn func(ctx context.Context, a *app, mgr *manager.Manager) (any, error)) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = a.requestContext(ctx, op)

	mgr, err := a.newManager(ctx, nil, nil)
	if err != nil {
		return err
	}
	out, err := fn(ctx, a, mgr)
	if out != nil {
		if perr := printJSON(out); perr != nil {
			return perr
		}
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var formationCmd = &cobra.Command{
	Use:   "formation",
	Short: "Organise fleet members into squads",
	Long:  "formation refreshes the roster, plans squads in the operational wing and moves the matching members into them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce("formation", func(ctx context.Context, a *app, mgr *manager.Manager) (any, error) {
			opts := manager.FormationOptions{
				MaxPerSquad:   formationMaxPerSquad,
				LocationMatch: formationLocationMatch,
				SquadCount:    formationSquads,
			}
			if len(formationShips) > 0 {
				ids, err := a.ships.ResolveTypes(formationShips)
				if err != nil {
					return nil, err
				}
				opts.ShipTypes = ids
			}
			res, err := mgr.Formation(ctx, opts)
			if res == nil || res.Plan == nil {
				return nil, err
			}
			return res, err
		})
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite <id|name|alias>...",
	Short: "Invite characters to the fleet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce("invite", func(ctx context.Context, a *app, mgr *manager.Manager) (any, error) {
			return mgr.Invite(ctx, args)
		})
	},
}

var kickCmd = &cobra.Command{
	Use:   "kick <id|name|alias>...",
	Short: "Remove characters from the fleet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce("kick", func(ctx context.Context, a *app, mgr *manager.Manager) (any, error) {
			return mgr.Kick(ctx, args, kickDelay)
		})
	},
}

var motdCmd = &cobra.Command{
	Use:   "motd <text>...",
	Short: "Replace or extend the fleet MOTD",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce("motd", func(ctx context.Context, a *app, mgr *manager.Manager) (any, error) {
			if err := mgr.UpdateMotd(ctx, strings.Join(args, " "), motdAppend); err != nil {
				return nil, err
			}
			fmt.Fprintln(os.Stderr, "motd updated")
			return mgr.CompositionSnapshot(), nil
		})
	},
}

func init() {
	formationCmd.Flags().IntVar(&formationMaxPerSquad, "max-per-squad", 0, "Members per squad (default from config)")
	formationCmd.Flags().BoolVar(&formationLocationMatch, "location-match", false, "Only place members in the main character's solar system")
	formationCmd.Flags().IntVar(&formationSquads, "squads", 0, "Force this many squads instead of deriving it from the member count")
	formationCmd.Flags().StringSliceVar(&formationShips, "ships", nil, "Ship names, classes or type ids to place (default: dominant classes)")

	kickCmd.Flags().DurationVar(&kickDelay, "delay", -1, "Pause between kicks (default from config)")

	motdCmd.Flags().BoolVar(&motdAppend, "append", false, "Append to the current MOTD instead of replacing it")
}
