package api

import (
	"net/http"
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/server"
	"github.com/npezzotti/go-chatrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRelayApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	cs := &server.ChatServer{}
	store := newTestStore(t)
	cfg := &config.Config{
		ServerAddr:     "localhost:4000",
		AllowedOrigins: []string{"http://localhost:3000/", "*"},
	}

	app := NewRelayApp(mux, logger, cs, store, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.srv, "expected server to be initialized")
	assert.Equal(t, store, app.store, "expected store to be set")
	assert.Equal(t, cs, app.cs, "expected chat server to be set")
	assert.Equal(t, cfg.ServerAddr, app.srv.Addr, "expected server address to match config")
	assert.True(t, app.allowAll, "expected wildcard to allow every origin")
	assert.Equal(t, []string{"http://localhost:3000"}, app.allowedOrigins)
}

func Test_normalizeOrigins(t *testing.T) {
	tcases := []struct {
		name     string
		origins  []string
		want     []string
		allowAll bool
	}{
		{name: "empty allows all", origins: nil, want: []string{}, allowAll: true},
		{name: "blank entries allow all", origins: []string{"", " "}, want: []string{}, allowAll: true},
		{name: "wildcard", origins: []string{"*"}, want: []string{}, allowAll: true},
		{name: "wildcard among origins", origins: []string{"http://a.example", "*"}, want: []string{"http://a.example"}, allowAll: true},
		{
			name:    "normalized",
			origins: []string{" HTTPS://Example.com ", "http://localhost:3000/path", "https://example.com/", "not an origin", ""},
			want:    []string{"https://example.com", "http://localhost:3000"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, allowAll := normalizeOrigins(tc.origins)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.allowAll, allowAll)
		})
	}
}
