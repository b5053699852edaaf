// Package esi is an HTTP/JSON client for the fleet-control and universe
// endpoints of the game's public API.
package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleetroster/internal/fleet"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://esi.evetech.net/latest"

const datasource = "tranquility"

// Client talks to the remote fleet service. It implements fleet.Service and
// directory.CharacterResolver.
type Client struct {
	baseURL        string
	tokens         TokenSource
	http           *http.Client
	logger         *slog.Logger
	sleep          func(context.Context, time.Duration) error
	motdRetryDelay time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSleep replaces the pause used between retries.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// New builds a client. A zero timeout means 30 seconds.
func New(baseURL string, tokens TokenSource, timeout time.Duration, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:         slog.Default(),
		sleep:          Sleep,
		motdRetryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "esi")
	return c
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &fleet.RemoteCallError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		payload = bytes.NewReader(data)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+sep+"datasource="+datasource, payload)
	if err != nil {
		return &fleet.RemoteCallError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return &fleet.RemoteCallError{Op: op, Err: fmt.Errorf("access token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &fleet.RemoteCallError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return &fleet.RemoteCallError{Op: op, Status: resp.StatusCode, Err: errors.New(text)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &fleet.RemoteCallError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func fleetPath(fleetID int64, rest string) string {
	return "/fleets/" + strconv.FormatInt(fleetID, 10) + "/" + rest
}

// FleetIDForCharacter returns the fleet the character currently belongs to.
func (c *Client) FleetIDForCharacter(ctx context.Context, characterID int64) (int64, error) {
	var out struct {
		FleetID int64 `json:"fleet_id"`
	}
	path := "/characters/" + strconv.FormatInt(characterID, 10) + "/fleet/"
	if err := c.do(ctx, "get character fleet", http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.FleetID, nil
}

func (c *Client) Members(ctx context.Context, fleetID int64) ([]fleet.Member, error) {
	var out []fleet.Member
	if err := c.do(ctx, "get fleet members", http.MethodGet, fleetPath(fleetID, "members/"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Motd(ctx context.Context, fleetID int64) (string, error) {
	var out struct {
		Motd string `json:"motd"`
	}
	if err := c.do(ctx, "get fleet", http.MethodGet, fleetPath(fleetID, ""), nil, &out); err != nil {
		return "", err
	}
	return out.Motd, nil
}

// PutMotd replaces the fleet MOTD. A 500 answer is retried once after a
// pause; the remote side returns it transiently under load.
func (c *Client) PutMotd(ctx context.Context, fleetID int64, motd string, freeMove bool) error {
	body := map[string]any{"is_free_move": freeMove, "motd": motd}
	err := c.do(ctx, "put fleet", http.MethodPut, fleetPath(fleetID, ""), body, nil)
	var rce *fleet.RemoteCallError
	if errors.As(err, &rce) && rce.Status == http.StatusInternalServerError {
		c.logger.Warn("motd update failed, retrying", "fleet_id", fleetID, "delay", c.motdRetryDelay)
		if serr := c.sleep(ctx, c.motdRetryDelay); serr != nil {
			return serr
		}
		err = c.do(ctx, "put fleet", http.MethodPut, fleetPath(fleetID, ""), body, nil)
	}
	return err
}

func (c *Client) Wings(ctx context.Context, fleetID int64) ([]fleet.Wing, error) {
	var out []fleet.Wing
	if err := c.do(ctx, "get fleet wings", http.MethodGet, fleetPath(fleetID, "wings/"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWing(ctx context.Context, fleetID int64) (int64, error) {
	var out struct {
		WingID int64 `json:"wing_id"`
	}
	if err := c.do(ctx, "create wing", http.MethodPost, fleetPath(fleetID, "wings/"), nil, &out); err != nil {
		return 0, err
	}
	return out.WingID, nil
}

func (c *Client) CreateSquad(ctx context.Context, fleetID, wingID int64) (int64, error) {
	var out struct {
		SquadID int64 `json:"squad_id"`
	}
	path := fleetPath(fleetID, "wings/"+strconv.FormatInt(wingID, 10)+"/squads/")
	if err := c.do(ctx, "create squad", http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.SquadID, nil
}

type movement struct {
	Role    fleet.Role `json:"role"`
	SquadID int64      `json:"squad_id,omitempty"`
	WingID  int64      `json:"wing_id,omitempty"`
}

func (c *Client) MoveMember(ctx context.Context, fleetID int64, d fleet.MoveDirective) error {
	if err := fleet.ValidateMove(d); err != nil {
		return err
	}
	path := fleetPath(fleetID, "members/"+strconv.FormatInt(d.CharacterID, 10)+"/")
	return c.do(ctx, "move member", http.MethodPut, path, movement{Role: d.Role, SquadID: d.SquadID, WingID: d.WingID}, nil)
}

func (c *Client) InviteMember(ctx context.Context, fleetID int64, d fleet.InviteDirective) error {
	if err := fleet.ValidateInvite(d); err != nil {
		return err
	}
	return c.do(ctx, "invite member", http.MethodPost, fleetPath(fleetID, "members/"), d, nil)
}

func (c *Client) KickMember(ctx context.Context, fleetID, characterID int64) error {
	path := fleetPath(fleetID, "members/"+strconv.FormatInt(characterID, 10)+"/")
	return c.do(ctx, "kick member", http.MethodDelete, path, nil, nil)
}

type namedEntity struct {
	Category string `json:"category,omitempty"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

// CharacterIDs resolves character names in one batch. Unknown names are
// absent from the result.
func (c *Client) CharacterIDs(ctx context.Context, names []string) (map[string]int64, error) {
	var out struct {
		Characters []namedEntity `json:"characters"`
	}
	if err := c.do(ctx, "resolve names", http.MethodPost, "/universe/ids/?language=en", names, &out); err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(out.Characters))
	for _, e := range out.Characters {
		ids[strings.ToLower(e.Name)] = e.ID
	}
	return ids, nil
}

// CharacterNames resolves character ids in one batch.
func (c *Client) CharacterNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	var out []namedEntity
	if err := c.do(ctx, "resolve ids", http.MethodPost, "/universe/names/", ids, &out); err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(out))
	for _, e := range out {
		if e.Category == "" || e.Category == "character" {
			names[e.ID] = e.Name
		}
	}
	return names, nil
}
