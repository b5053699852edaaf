package dashboard

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

var testTables = Tables{Database: "public", HistoryTable: "fleet_roster", LossTable: "fleet_loss"}

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if _, err := Render(t.TempDir(), testTables); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	files, err := Render(t.TempDir(), testTables)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(files) != 1 || !strings.HasSuffix(files[0], "fleet-roster.json") {
		t.Fatalf("unexpected output files %v", files)
	}

	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !json.Valid(b) {
		t.Fatalf("rendered dashboard is not valid JSON")
	}
	s := string(b)
	if !strings.Contains(s, "uid1") {
		t.Fatalf("greptime uid not rendered")
	}
	if !strings.Contains(s, "public.fleet_loss") || !strings.Contains(s, "public.fleet_roster") {
		t.Fatalf("table names not rendered")
	}
}
