package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"fleetroster/internal/config"
	"fleetroster/internal/directory"
	"fleetroster/internal/esi"
	"fleetroster/internal/logging"
	"fleetroster/internal/manager"
	"fleetroster/internal/sink"
)

// app bundles the collaborators every command needs.
type app struct {
	cfg    *config.RosterConfig
	logger *slog.Logger
	client *esi.Client
	ships  *directory.Ships
	chars  *directory.Characters
}

// loadApp loads the configuration and wires the shared collaborators.
// Logs go to logOut.
func loadApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewWriter(logOut, level, cfg.Log.Format)
	slog.SetDefault(logger)

	tokens := &esi.RetryingTokenSource{
		Refresh:     tokenFromEnv(cfg.ESI.Token),
		MaxAttempts: cfg.ESI.MaxAttempts,
		Backoff:     time.Second,
		Logger:      logger,
	}
	client := esi.New(cfg.ESI.BaseURL, tokens, cfg.ESI.Timeout, esi.WithLogger(logger))

	ships, err := directory.LoadShips(cfg.ShipCatalogPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("ship catalog missing, ship names and classes unavailable", "path", cfg.ShipCatalogPath)
		ships = directory.NewShips()
	} else if err != nil {
		return nil, err
	}
	chars, err := directory.LoadCharacters(cfg.CharacterCachePath, client, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, client: client, ships: ships, chars: chars}, nil
}

// tokenFromEnv re-reads ESI_TOKEN on every refresh so a rotated token is
// picked up after the old one is rejected.
func tokenFromEnv(fallback string) esi.RefreshFunc {
	return func(context.Context) (string, error) {
		if tok := os.Getenv("ESI_TOKEN"); tok != "" {
			return tok, nil
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", errors.New("no access token: set esi.token or ESI_TOKEN")
	}
}

// requestContext tags ctx with a fresh request id for one CLI operation.
func (a *app) requestContext(ctx context.Context, op string) context.Context {
	return logging.NewContext(ctx, a.logger.With("request_id", uuid.NewString(), "command", op))
}

// fleetID returns the configured fleet or looks it up through the main
// character.
func (a *app) fleetID(ctx context.Context) (int64, error) {
	if a.cfg.FleetID > 0 {
		return a.cfg.FleetID, nil
	}
	if a.cfg.MainCharacterID <= 0 {
		return 0, errors.New("fleet_id or main_character_id must be configured")
	}
	id, err := a.client.FleetIDForCharacter(ctx, a.cfg.MainCharacterID)
	if err != nil {
		return 0, fmt.Errorf("look up fleet of character %d: %w", a.cfg.MainCharacterID, err)
	}
	a.logger.Info("resolved fleet from main character", "fleet_id", id, "character_id", a.cfg.MainCharacterID)
	return id, nil
}

// newManager builds a manager against the live fleet. Nil sinks disable
// snapshot and loss output.
func (a *app) newManager(ctx context.Context, sw sink.SnapshotWriter, lw sink.LossWriter) (*manager.Manager, error) {
	fleetID, err := a.fleetID(ctx)
	if err != nil {
		return nil, err
	}
	defaults := defaultShipTypes(a.ships, a.cfg.DefaultShipTypes, a.logger)
	opts := manager.Options{
		FleetID:          fleetID,
		MainCharacterID:  a.cfg.MainCharacterID,
		AltIDs:           a.cfg.AltIDs,
		AltAliases:       a.cfg.AltAliases,
		DefaultShipTypes: defaults,
		HistorySize:      a.cfg.HistorySize,
		LossHistorySize:  a.cfg.LossHistorySize,
		RefreshInterval:  a.cfg.RefreshInterval,
		PoolSize:         a.cfg.WorkerPoolSize,
		MaxPerSquad:      a.cfg.MaxPerSquad,
		KickDelay:        a.cfg.KickDelay,
		LossSameShip:     a.cfg.LossSameShip,
	}
	return manager.New(ctx, a.client, a.ships, opts,
		manager.WithLogger(a.logger),
		manager.WithDirectory(a.chars),
		manager.WithSinks(sw, lw))
}

// defaultShipTypes resolves the configured ship set against the catalog.
// Names the catalog does not know, e.g. when it is missing, fall back to
// config.DefaultShipTypeIDs.
func defaultShipTypes(ships *directory.Ships, items []string, logger *slog.Logger) []int64 {
	ids, err := ships.ResolveTypes(items)
	if err != nil {
		logger.Warn("default_ship_types not resolvable, using built-in ship set", "err", err, "types", config.DefaultShipTypeIDs)
		return append([]int64(nil), config.DefaultShipTypeIDs...)
	}
	return ids
}

// close persists the character cache.
func (a *app) close() {
	if err := a.chars.Save(); err != nil {
		a.logger.Warn("saving character cache failed", "err", err)
	}
}
