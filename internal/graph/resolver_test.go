package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/guildview/internal/discord"
	"github.com/hitoshi/guildview/internal/middleware"
	"github.com/hitoshi/guildview/internal/model"
)

// --- モック定義 ---

type mockGuildProvider struct {
	fetchGuildsFn func(ctx context.Context, accessToken string) ([]model.Guild, error)
	calls         atomic.Int32
	lastToken     string
}

func (m *mockGuildProvider) FetchGuilds(ctx context.Context, accessToken string) ([]model.Guild, error) {
	m.calls.Add(1)
	m.lastToken = accessToken
	if m.fetchGuildsFn != nil {
		return m.fetchGuildsFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockGuildProvider) FetchGuildRoles(_ context.Context, guildID string) ([]model.Role, error) {
	return nil, model.ErrNotImplemented
}

var _ discord.GuildProvider = (*mockGuildProvider)(nil)

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Path       []interface{}          `json:"path"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

func strPtr(s string) *string { return &s }

func alice() *model.User {
	return &model.User{
		ID:            1,
		DiscordID:     "123",
		Username:      "alice",
		Discriminator: "0001",
		AccessToken:   strPtr("access-token"),
	}
}

// execQuery はGraphQLハンドラーにクエリをPOSTし、レスポンスを返す。
func execQuery(t *testing.T, provider discord.GuildProvider, user *model.User, query string) gqlResponse {
	t.Helper()

	schema, err := NewSchema(provider)
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	handler := NewHandler(schema)

	body, _ := json.Marshal(map[string]interface{}{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/api/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(middleware.ContextWithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp gqlResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, w.Body.String())
	}
	return resp
}

// --- テスト ---

func TestNewSchema_Parses(t *testing.T) {
	if _, err := NewSchema(&mockGuildProvider{}); err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
}

func TestGetUser_Unauthenticated_ReturnsError(t *testing.T) {
	provider := &mockGuildProvider{}
	resp := execQuery(t, provider, nil, `{ getUser { id username } }`)

	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v, want 1", resp.Errors)
	}
	if resp.Errors[0].Extensions["code"] != CodeUnauthenticated {
		t.Errorf("code = %v, want %s", resp.Errors[0].Extensions["code"], CodeUnauthenticated)
	}
	if string(resp.Data) != `{"getUser":null}` {
		t.Errorf("data = %s, want getUser null", resp.Data)
	}
	if provider.calls.Load() != 0 {
		t.Error("provider should not be called")
	}
}

func TestGetUser_BaseFieldsOnly_DoesNotFetchGuilds(t *testing.T) {
	provider := &mockGuildProvider{}
	resp := execQuery(t, provider, alice(), `{ getUser { id discordId username discriminator avatar } }`)

	if len(resp.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	want := `{"getUser":{"id":"1","discordId":"123","username":"alice","discriminator":"0001","avatar":null}}`
	if string(resp.Data) != want {
		t.Errorf("data = %s\nwant %s", resp.Data, want)
	}
	if n := provider.calls.Load(); n != 0 {
		t.Errorf("FetchGuilds called %d times, want 0", n)
	}
}

func TestGetUser_ID_BeyondInt32_IsNotTruncated(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want string
	}{
		{"int32 boundary", 1 << 31, "2147483648"},
		{"large bigserial", 9007199254740993, "9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := alice()
			user.ID = tt.id
			resp := execQuery(t, &mockGuildProvider{}, user, `{ getUser { id } }`)

			if len(resp.Errors) != 0 {
				t.Fatalf("unexpected errors: %+v", resp.Errors)
			}
			want := `{"getUser":{"id":"` + tt.want + `"}}`
			if string(resp.Data) != want {
				t.Errorf("data = %s, want %s", resp.Data, want)
			}
		})
	}
}

func TestGetUser_Guilds_FetchesWithStoredToken(t *testing.T) {
	provider := &mockGuildProvider{
		fetchGuildsFn: func(_ context.Context, _ string) ([]model.Guild, error) {
			return []model.Guild{
				{ID: "1", Name: "Gophers", Icon: strPtr("abc"), OwnerID: strPtr("123")},
				{ID: "2", Name: "Rustaceans", Roles: []model.Role{
					{ID: "r1", Name: "admin", Permissions: "8", Position: 1, Color: 255},
				}},
			}, nil
		},
	}
	resp := execQuery(t, provider, alice(),
		`{ getUser { username guilds { id name icon owner_id roles { id name permissions position color } } } }`)

	if len(resp.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
	want := `{"getUser":{"username":"alice","guilds":[` +
		`{"id":"1","name":"Gophers","icon":"abc","owner_id":"123","roles":null},` +
		`{"id":"2","name":"Rustaceans","icon":null,"owner_id":null,"roles":[{"id":"r1","name":"admin","permissions":"8","position":1,"color":255}]}` +
		`]}}`
	if string(resp.Data) != want {
		t.Errorf("data = %s\nwant %s", resp.Data, want)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("FetchGuilds calls = %d, want 1", provider.calls.Load())
	}
	if provider.lastToken != "access-token" {
		t.Errorf("token = %q, want access-token", provider.lastToken)
	}
}

func TestGetUser_GuildsUpstreamFailure_IsFieldError(t *testing.T) {
	provider := &mockGuildProvider{
		fetchGuildsFn: func(context.Context, string) ([]model.Guild, error) {
			return nil, &discord.UpstreamError{StatusCode: http.StatusUnauthorized, Body: "401: Unauthorized"}
		},
	}
	resp := execQuery(t, provider, alice(), `{ getUser { username guilds { id } } }`)

	if len(resp.Errors) != 1 {
		t.Fatalf("errors = %+v, want 1", resp.Errors)
	}
	if resp.Errors[0].Extensions["code"] != CodeUpstream {
		t.Errorf("code = %v, want %s", resp.Errors[0].Extensions["code"], CodeUpstream)
	}
	if string(resp.Data) != `{"getUser":{"username":"alice","guilds":null}}` {
		t.Errorf("data = %s, sibling fields should still resolve", resp.Data)
	}
}

func TestGetUser_NoStoredToken_IsFieldError(t *testing.T) {
	provider := &mockGuildProvider{
		fetchGuildsFn: func(_ context.Context, token string) ([]model.Guild, error) {
			if token == "" {
				return nil, model.ErrNoAccessToken
			}
			return nil, nil
		},
	}
	user := alice()
	user.AccessToken = nil

	resp := execQuery(t, provider, user, `{ getUser { guilds { id } } }`)
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != CodeUpstream {
		t.Errorf("errors = %+v, want one UPSTREAM_ERROR", resp.Errors)
	}
}

func TestGetUser_EmptyGuildList(t *testing.T) {
	provider := &mockGuildProvider{
		fetchGuildsFn: func(context.Context, string) ([]model.Guild, error) { return []model.Guild{}, nil },
	}
	resp := execQuery(t, provider, alice(), `{ getUser { guilds { id } } }`)

	if string(resp.Data) != `{"getUser":{"guilds":[]}}` {
		t.Errorf("data = %s", resp.Data)
	}
}

func TestToGQLError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not implemented", model.ErrNotImplemented, CodeNotImplemented},
		{"upstream", &discord.UpstreamError{StatusCode: 500}, CodeUpstream},
		{"no token", model.ErrNoAccessToken, CodeUpstream},
		{"other", context.Canceled, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gerr, ok := toGQLError(tt.err).(*gqlError)
			if !ok {
				t.Fatalf("toGQLError returned %T", toGQLError(tt.err))
			}
			if gerr.Extensions()["code"] != tt.want {
				t.Errorf("code = %v, want %s", gerr.Extensions()["code"], tt.want)
			}
		})
	}
}
