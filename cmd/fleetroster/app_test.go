package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"fleetroster/internal/directory"
)

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("ESI_TOKEN", "")
	refresh := tokenFromEnv("from-config")
	tok, err := refresh(context.Background())
	if err != nil || tok != "from-config" {
		t.Fatalf("expected config token, got %q %v", tok, err)
	}

	t.Setenv("ESI_TOKEN", "rotated")
	if tok, _ := refresh(context.Background()); tok != "rotated" {
		t.Errorf("expected env token to win, got %q", tok)
	}

	t.Setenv("ESI_TOKEN", "")
	if _, err := tokenFromEnv("")(context.Background()); err == nil {
		t.Errorf("expected error without any token")
	}
}

func TestDefaultShipTypesWithoutCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	got := defaultShipTypes(directory.NewShips(), []string{"Stealth Bomber"}, logger)
	if len(got) != 4 || got[0] != 12038 || got[3] != 12034 {
		t.Fatalf("expected built-in ship set, got %v", got)
	}
}

func TestDefaultShipTypesFromCatalog(t *testing.T) {
	ships := directory.NewShips()
	ships.Add(12038, 834, "Purifier", "Stealth Bomber")
	ships.Add(12034, 834, "Hound", "Stealth Bomber")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	got := defaultShipTypes(ships, []string{"Stealth Bomber"}, logger)
	if len(got) != 2 {
		t.Fatalf("expected class expansion from catalog, got %v", got)
	}
}
