package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/gateway"
	"github.com/mcdev12/livequiz/go/internal/session/rpc"
)

func testServices(t *testing.T) (*Services, *catalog.Memory) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	bus := broadcast.New(broadcast.WithClock(clock))
	cat := catalog.NewMemory()
	mgr := session.NewManager(session.DefaultConfig(), cat, bus, session.WithClock(clock))
	return &Services{
		Clock:   clock,
		Bus:     bus,
		Manager: mgr,
		Tokens:  auth.NewTokens("secret", "livequiz", time.Hour, clock),
		Gateway: gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), mgr, bus, clock),
	}, cat
}

func testConfig() *Config {
	return &Config{
		bind:              "127.0.0.1",
		port:              8080,
		jwtSecret:         "secret",
		heartbeatInterval: 10 * time.Second,
	}
}

func TestHealth(t *testing.T) {
	svc, _ := testServices(t)
	srv := httptest.NewServer(setupServer(testConfig(), svc).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != "ok" || report.Outbox != nil {
		t.Fatalf("report = %+v", report)
	}
}

func TestJoinQR(t *testing.T) {
	svc, cat := testServices(t)
	game := &models.Game{
		ID: uuid.New(),
		Activities: []models.Activity{{
			ID:      uuid.New(),
			Type:    models.ActivityTypeMultipleChoice,
			Content: []models.ContentItem{{ID: uuid.New(), DurationSec: 30, AnswerKey: json.RawMessage(`{"correct_index":0}`)}},
		}},
	}
	cat.AddGame(game)
	info, err := svc.Manager.Create(context.Background(), session.CreateRequest{OwnerID: "teacher-1", GameID: game.ID})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(setupServer(testConfig(), svc).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/join/" + info.AccessCode + "/qr.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(srv.URL + "/join/NOPE99/qr.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown code status = %d", resp.StatusCode)
	}
}

func TestRPCMounted(t *testing.T) {
	svc, _ := testServices(t)
	srv := httptest.NewServer(setupServer(testConfig(), svc).Handler)
	defer srv.Close()

	token, err := svc.Tokens.Sign(auth.Identity{UserID: "p1", Role: auth.RoleStudent})
	if err != nil {
		t.Fatal(err)
	}
	client := rpc.NewClient(srv.Client(), srv.URL,
		connect.WithInterceptors(rpc.NewTokenInterceptor(func() string { return token })))
	_, err = client.GetSession(context.Background(), &rpc.SessionRef{AccessCode: "NOPE99"})
	if !session.IsNotFound(err) {
		t.Fatalf("GetSession err = %v, want not found", err)
	}
}

func TestJoinURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://quiz.local:8080/join/ABCDEF/qr.png", nil)
	cfg := testConfig()
	if got := joinURL(cfg, r, "ABCDEF"); got != "http://quiz.local:8080/join/ABCDEF" {
		t.Fatalf("joinURL = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := joinURL(cfg, r, "ABCDEF"); got != "https://quiz.local:8080/join/ABCDEF" {
		t.Fatalf("forwarded joinURL = %q", got)
	}
	cfg.publicURL = "https://quiz.example.com/"
	if got := joinURL(cfg, r, "ABCDEF"); got != "https://quiz.example.com/join/ABCDEF" {
		t.Fatalf("public joinURL = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.port = 0 }, wantErr: "invalid port"},
		{name: "no secret", mutate: func(c *Config) { c.jwtSecret = "" }, wantErr: "jwt-secret"},
		{name: "no heartbeat", mutate: func(c *Config) { c.heartbeatInterval = 0 }, wantErr: "heartbeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvFillsFlags(t *testing.T) {
	t.Setenv("LIVEQUIZ_JWT_SECRET", "from-env")
	t.Setenv("LIVEQUIZ_LOG_LEVEL", "debug")

	cfg := &Config{}
	root := newRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "teacher-1", "--role", "teacher", "--log-level", "warn"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	if cfg.jwtSecret != "from-env" {
		t.Fatalf("jwt secret = %q", cfg.jwtSecret)
	}
	if cfg.logLevel != "warn" {
		t.Fatalf("flag should win over env, log level = %q", cfg.logLevel)
	}

	token := strings.TrimSpace(out.String())
	id, err := auth.NewTokens("from-env", "livequiz", time.Hour, nil).Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "teacher-1" || id.Role != auth.RoleTeacher {
		t.Fatalf("identity = %+v", id)
	}
}
