package esi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetroster/internal/fleet"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestMembersAndAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fleets/42/members/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("datasource") != "tranquility" {
			t.Errorf("missing datasource query")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`[{"character_id":1,"role":"squad_member","ship_type_id":12038,"solar_system_id":30000142,"squad_id":7,"wing_id":3,"takes_fleet_warp":true}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), time.Second)
	members, err := c.Members(context.Background(), 42)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].SquadID != 7 || members[0].Role != fleet.RoleSquadMember {
		t.Fatalf("unexpected members %+v", members)
	}
}

func TestNon2xxIsRemoteCallError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fleet not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Second)
	_, err := c.Wings(context.Background(), 1)
	var rce *fleet.RemoteCallError
	if !errors.As(err, &rce) {
		t.Fatalf("expected RemoteCallError, got %v", err)
	}
	if rce.Status != http.StatusNotFound || rce.Op != "get fleet wings" {
		t.Fatalf("unexpected error fields %+v", rce)
	}
}

func TestPutMotdRetriesOnceOn500(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&body)
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var slept time.Duration
	c := New(srv.URL, StaticToken("tok"), time.Second, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}))
	if err := c.PutMotd(context.Background(), 9, "x up", true); err != nil {
		t.Fatalf("PutMotd: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if slept != 5*time.Second {
		t.Fatalf("expected 5s pause, got %v", slept)
	}
	if body["motd"] != "x up" || body["is_free_move"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPutMotdGivesUpAfterSecond500(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), time.Second, WithSleep(noSleep))
	if err := c.PutMotd(context.Background(), 9, "x", false); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
}

func TestMoveMemberBodyAndValidation(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fleets/5/members/77/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), time.Second)
	d := fleet.MoveDirective{CharacterID: 77, Role: fleet.RoleSquadMember, SquadID: 10, WingID: 2}
	if err := c.MoveMember(context.Background(), 5, d); err != nil {
		t.Fatalf("MoveMember: %v", err)
	}
	if got["role"] != "squad_member" || got["squad_id"] != float64(10) || got["wing_id"] != float64(2) {
		t.Fatalf("unexpected body %v", got)
	}

	bad := fleet.MoveDirective{CharacterID: 77, Role: fleet.RoleWingCommander, SquadID: 10, WingID: 2}
	var ve *fleet.ValidationError
	if err := c.MoveMember(context.Background(), 5, bad); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateWingAndSquad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fleets/1/wings/":
			w.Write([]byte(`{"wing_id": 2001}`))
		case "/fleets/1/wings/2001/squads/":
			w.Write([]byte(`{"squad_id": 3001}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), time.Second)
	wing, err := c.CreateWing(context.Background(), 1)
	if err != nil || wing != 2001 {
		t.Fatalf("CreateWing = %d, %v", wing, err)
	}
	squad, err := c.CreateSquad(context.Background(), 1, wing)
	if err != nil || squad != 3001 {
		t.Fatalf("CreateSquad = %d, %v", squad, err)
	}
}

func TestCharacterResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/universe/ids/":
			w.Write([]byte(`{"characters":[{"id":90000001,"name":"Alice Example"}]}`))
		case "/universe/names/":
			w.Write([]byte(`[{"category":"character","id":90000001,"name":"Alice Example"},{"category":"solar_system","id":30000142,"name":"Jita"}]`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Second)
	ids, err := c.CharacterIDs(context.Background(), []string{"Alice Example", "Nobody"})
	if err != nil {
		t.Fatalf("CharacterIDs: %v", err)
	}
	if ids["alice example"] != 90000001 || len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}
	names, err := c.CharacterNames(context.Background(), []int64{90000001, 30000142})
	if err != nil {
		t.Fatalf("CharacterNames: %v", err)
	}
	if len(names) != 1 || names[90000001] != "Alice Example" {
		t.Fatalf("names = %v", names)
	}
}

func TestRetryingTokenSource(t *testing.T) {
	attempts := 0
	var pauses []time.Duration
	src := &RetryingTokenSource{
		Refresh: func(context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("sso unavailable")
			}
			return "fresh", nil
		},
		MaxAttempts: 3,
		Backoff:     time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		},
	}
	tok, err := src.Token(context.Background())
	if err != nil || tok != "fresh" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	if len(pauses) != 2 || pauses[0] != time.Second || pauses[1] != 2*time.Second {
		t.Fatalf("unexpected pauses %v", pauses)
	}
	if _, err := src.Token(context.Background()); err != nil || attempts != 3 {
		t.Fatalf("cached token should not refresh again (attempts=%d)", attempts)
	}
	src.Invalidate()
	src.Token(context.Background())
	if attempts != 4 {
		t.Fatalf("expected refresh after Invalidate, attempts=%d", attempts)
	}
}

func TestRetryingTokenSourceBounded(t *testing.T) {
	attempts := 0
	src := &RetryingTokenSource{
		Refresh: func(context.Context) (string, error) {
			attempts++
			return "", errors.New("denied")
		},
		MaxAttempts: 3,
		Sleep:       noSleep,
	}
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
