package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetroster/internal/fleet"
	"fleetroster/internal/manager"
)

type fakeRoster struct {
	limit      int
	formation  manager.FormationOptions
	targets    []string
	kickDelay  time.Duration
	motd       string
	motdAppend bool
	inviteErr  error
}

func (f *fakeRoster) Status() manager.Status {
	return manager.Status{FleetID: 42, Members: 3, MainPresent: true}
}

func (f *fakeRoster) CompositionSnapshot() manager.Composition {
	return manager.Composition{FleetID: 42, Members: 3, Composition: map[string]int{"Purifier": 3}}
}

func (f *fakeRoster) StructureSnapshot() fleet.Tree {
	return fleet.Tree{{ID: 1, Name: "Operational", Squads: []fleet.Squad{{ID: 11}}}}
}

func (f *fakeRoster) History(limit int) []fleet.HistoryEntry {
	f.limit = limit
	return []fleet.HistoryEntry{{FleetID: 42}}
}

func (f *fakeRoster) LossHistory(limit int) []fleet.LossRecord {
	f.limit = limit
	return []fleet.LossRecord{{Loss: map[string]float64{"Bomber": 1.5}}}
}

func (f *fakeRoster) Formation(ctx context.Context, opts manager.FormationOptions) (*manager.FormationResult, error) {
	f.formation = opts
	return &manager.FormationResult{}, nil
}

func (f *fakeRoster) Invite(ctx context.Context, targets []string) (*manager.BatchResult, error) {
	f.targets = targets
	res := &manager.BatchResult{Op: "invite", Requested: len(targets), Succeeded: len(targets)}
	if f.inviteErr != nil {
		res.Succeeded = 0
		res.Failed = len(targets)
		return res, f.inviteErr
	}
	return res, nil
}

func (f *fakeRoster) Kick(ctx context.Context, targets []string, delay time.Duration) (*manager.BatchResult, error) {
	f.targets = targets
	f.kickDelay = delay
	return &manager.BatchResult{Op: "kick", Requested: len(targets), Succeeded: len(targets)}, nil
}

func (f *fakeRoster) UpdateMotd(ctx context.Context, text string, appendText bool) error {
	f.motd = text
	f.motdAppend = appendText
	return nil
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s: %v (%q)", method, path, err, w.Body.String())
	}
	return w, out
}

func TestStatusAndHealth(t *testing.T) {
	srv := NewServer(&fakeRoster{}, nil)

	w, out := do(t, srv, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("healthz: %d %v", w.Code, out)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Errorf("expected a request id header")
	}

	w, out = do(t, srv, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	status := out["status"].(map[string]any)
	if status["fleet_id"].(float64) != 42 || status["main_present"] != true {
		t.Errorf("unexpected status %v", status)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := NewServer(&fakeRoster{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); got != "abc" {
		t.Errorf("request id = %q, want abc", got)
	}
}

func TestHistoryLimit(t *testing.T) {
	f := &fakeRoster{}
	srv := NewServer(f, nil)

	w, out := do(t, srv, http.MethodGet, "/history?limit=4", "")
	if w.Code != http.StatusOK || f.limit != 4 {
		t.Fatalf("code %d limit %d", w.Code, f.limit)
	}
	if len(out["history"].([]any)) != 1 {
		t.Errorf("unexpected history %v", out["history"])
	}

	w, out = do(t, srv, http.MethodGet, "/losses?limit=abc", "")
	if w.Code != http.StatusBadRequest || out["success"] != false {
		t.Errorf("expected 400 for bad limit, got %d %v", w.Code, out)
	}
}

func TestFormationDecodesOptions(t *testing.T) {
	f := &fakeRoster{}
	srv := NewServer(f, nil)
	w, out := do(t, srv, http.MethodPost, "/formation", `{"max_per_squad":5,"location_match":true,"ship_types":[12038]}`)
	if w.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("formation: %d %v", w.Code, out)
	}
	if f.formation.MaxPerSquad != 5 || !f.formation.LocationMatch || len(f.formation.ShipTypes) != 1 {
		t.Errorf("options not forwarded: %+v", f.formation)
	}
}

func TestInviteValidation(t *testing.T) {
	srv := NewServer(&fakeRoster{}, nil)
	w, out := do(t, srv, http.MethodPost, "/invite", `{"targets":[]}`)
	if w.Code != http.StatusBadRequest || out["success"] != false {
		t.Errorf("expected 400 for empty targets, got %d", w.Code)
	}
	w, _ = do(t, srv, http.MethodPost, "/invite", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestInviteAllFailedIsBadGateway(t *testing.T) {
	f := &fakeRoster{inviteErr: &fleet.BatchError{Op: "invite", Failed: 2, Errs: []error{errors.New("boom"), errors.New("boom")}}}
	srv := NewServer(f, nil)
	w, out := do(t, srv, http.MethodPost, "/invite", `{"targets":["1","alt"]}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("code = %d, want 502", w.Code)
	}
	result := out["result"].(map[string]any)
	if result["failed"].(float64) != 2 {
		t.Errorf("unexpected result %v", result)
	}
}

func TestKickDelay(t *testing.T) {
	f := &fakeRoster{}
	srv := NewServer(f, nil)

	if w, _ := do(t, srv, http.MethodPost, "/kick", `{"targets":["7"]}`); w.Code != http.StatusOK {
		t.Fatalf("kick: %d", w.Code)
	}
	if f.kickDelay >= 0 {
		t.Errorf("missing delay should select the default, got %s", f.kickDelay)
	}

	if w, _ := do(t, srv, http.MethodPost, "/kick", `{"targets":["7","8"],"delay":"250ms"}`); w.Code != http.StatusOK {
		t.Fatalf("kick: %d", w.Code)
	}
	if f.kickDelay != 250*time.Millisecond || len(f.targets) != 2 {
		t.Errorf("delay %s targets %v", f.kickDelay, f.targets)
	}

	if w, _ := do(t, srv, http.MethodPost, "/kick", `{"targets":["7"],"delay":"soon"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad delay, got %d", w.Code)
	}
}

func TestMotd(t *testing.T) {
	f := &fakeRoster{}
	srv := NewServer(f, nil)
	w, out := do(t, srv, http.MethodPost, "/motd", `{"text":"x up","append":true}`)
	if w.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("motd: %d %v", w.Code, out)
	}
	if f.motd != "x up" || !f.motdAppend {
		t.Errorf("motd not forwarded: %q %v", f.motd, f.motdAppend)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(&fakeRoster{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestDirectiveAfterShutdownIsUnavailable(t *testing.T) {
	f := &fakeRoster{inviteErr: &fleet.BatchError{Op: "invite", Failed: 1, Errs: []error{manager.ErrStopped}}}
	srv := NewServer(f, nil)
	w, out := do(t, srv, http.MethodPost, "/invite", `{"targets":["1"]}`)
	if w.Code != http.StatusServiceUnavailable || out["success"] != false {
		t.Fatalf("code = %d, want 503 (%v)", w.Code, out)
	}
}
