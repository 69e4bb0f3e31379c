package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/guildview/internal/model"
)

// recordingMetrics はRecordGuildFetchの呼び出しを記録するテスト用実装。
type recordingMetrics struct {
	mu      sync.Mutex
	results []bool
}

func (m *recordingMetrics) RecordLogin(string) {}
func (m *recordingMetrics) RecordGuildFetch(success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, success)
}
func (m *recordingMetrics) RecordHTTPStatus(int)        {}
func (m *recordingMetrics) RecordSessionsCleaned(int64) {}

const guildsJSON = `[
  {"id":"1","name":"Gophers","icon":"abc","owner_id":"123","description":null},
  {"id":"2","name":"Rustaceans","banner":"b","roles":[{"id":"r1","name":"admin","permissions":"8","position":1,"color":16711680}]}
]`

func TestClient_FetchGuilds_MapsResponse(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(guildsJSON))
	}))
	defer srv.Close()

	mc := &recordingMetrics{}
	c := NewClient(srv.URL+"/", srv.Client(), mc)

	guilds, err := c.FetchGuilds(context.Background(), "token-abc")
	if err != nil {
		t.Fatalf("FetchGuilds() error = %v", err)
	}

	if gotAuth != "Bearer token-abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/users/@me/guilds" {
		t.Errorf("path = %q", gotPath)
	}
	if len(guilds) != 2 {
		t.Fatalf("len(guilds) = %d, want 2", len(guilds))
	}

	g0 := guilds[0]
	if g0.ID != "1" || g0.Name != "Gophers" {
		t.Errorf("guilds[0] = %+v", g0)
	}
	if g0.Icon == nil || *g0.Icon != "abc" {
		t.Errorf("guilds[0].Icon = %v", g0.Icon)
	}
	if g0.OwnerID == nil || *g0.OwnerID != "123" {
		t.Errorf("guilds[0].OwnerID = %v", g0.OwnerID)
	}
	if g0.Description != nil {
		t.Errorf("guilds[0].Description = %v, want nil", *g0.Description)
	}
	if g0.Roles != nil {
		t.Errorf("guilds[0].Roles = %v, want nil", g0.Roles)
	}

	g1 := guilds[1]
	if len(g1.Roles) != 1 {
		t.Fatalf("guilds[1].Roles = %v", g1.Roles)
	}
	want := model.Role{ID: "r1", Name: "admin", Permissions: "8", Position: 1, Color: 16711680}
	if g1.Roles[0] != want {
		t.Errorf("role = %+v, want %+v", g1.Roles[0], want)
	}

	if len(mc.results) != 1 || !mc.results[0] {
		t.Errorf("metrics results = %v, want [true]", mc.results)
	}
}

func TestClient_FetchGuilds_Non2xx_ReturnsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
	}))
	defer srv.Close()

	mc := &recordingMetrics{}
	c := NewClient(srv.URL, srv.Client(), mc)

	_, err := c.FetchGuilds(context.Background(), "expired")
	if err == nil {
		t.Fatal("expected error")
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %T, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", upErr.StatusCode)
	}
	if !errors.Is(err, model.ErrUpstream) {
		t.Error("expected errors.Is(err, ErrUpstream)")
	}
	if !IsUpstreamError(err) {
		t.Error("IsUpstreamError should be true")
	}
	if len(mc.results) != 1 || mc.results[0] {
		t.Errorf("metrics results = %v, want [false]", mc.results)
	}
}

func TestClient_FetchGuilds_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.FetchGuilds(context.Background(), "token")
	if !errors.Is(err, model.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestClient_FetchGuilds_EmptyToken_NoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.FetchGuilds(context.Background(), "")
	if !errors.Is(err, model.ErrNoAccessToken) {
		t.Errorf("err = %v, want ErrNoAccessToken", err)
	}
	if called {
		t.Error("no request should be made without a token")
	}
}

func TestClient_FetchGuilds_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	httpClient := srv.Client()
	httpClient.Timeout = 50 * time.Millisecond
	c := NewClient(srv.URL, httpClient, nil)

	_, err := c.FetchGuilds(context.Background(), "token")
	if !errors.Is(err, model.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream on timeout", err)
	}
}

func TestClient_FetchGuildRoles_NotImplemented(t *testing.T) {
	c := NewClient("", nil, nil)

	for _, id := range []string{"", "1", "guild-xyz"} {
		roles, err := c.FetchGuildRoles(context.Background(), id)
		if !errors.Is(err, model.ErrNotImplemented) {
			t.Errorf("FetchGuildRoles(%q) err = %v, want ErrNotImplemented", id, err)
		}
		if roles != nil {
			t.Errorf("FetchGuildRoles(%q) roles = %v, want nil", id, roles)
		}
	}
}

func TestNewHTTPClient_DefaultTimeout(t *testing.T) {
	if c := NewHTTPClient(0); c.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", c.Timeout)
	}
	if c := NewHTTPClient(3 * time.Second); c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
}
