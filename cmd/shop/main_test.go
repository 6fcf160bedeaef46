package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(in))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")

	require.NoError(t, err)
	assert.Contains(t, out, "Version: N/A")
	assert.Contains(t, out, "Build Date: N/A")
}

func TestShell_AgainstBackend(t *testing.T) {
	var logouts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/cart/":
			_, _ = w.Write([]byte(`{"items":[]}`))
		case "/api/accounts/logout/":
			logouts.Add(1)
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found."}`))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG", "")
	t.Setenv("TOKEN_FILE", filepath.Join(dir, "storage.json"))

	tests := []struct {
		name string
		in   string
		args []string
		want string
	}{
		{name: "repl", in: "cart\nexit\n", args: []string{"--api", srv.URL, "--log-level", "error"}, want: "Your cart is empty."},
		{name: "shell subcommand", in: "whoami\n", args: []string{"shell", "--api", srv.URL, "--log-level", "error"}, want: "Not signed in."},
		{name: "logout", args: []string{"logout", "--api", srv.URL, "--log-level", "error"}, want: "Signed out."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.in, tt.args...)

			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
	assert.Equal(t, int32(1), logouts.Load())
}

func TestBadLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG", "")

	_, err := execute(t, "", "shell", "--log-level", "loud")

	assert.ErrorContains(t, err, "parse log level")
}

func TestNewApp_APIFlagMovesGraphQL(t *testing.T) {
	var graphql atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && r.URL.Path == "/en/graphql" {
			graphql.Add(1)
			_, _ = w.Write([]byte(`{"data":{"recommendedProducts":[{"id":"7","name":"Tartan"}]}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG", "")
	t.Setenv("API_BASE", "")
	t.Setenv("GRAPHQL_URL", "")
	t.Setenv("TOKEN_FILE", filepath.Join(dir, "storage.json"))

	a, err := newApp(flags{apiBase: srv.URL, logLevel: "error"})
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, srv.URL, a.opts.APIBase)
	assert.Equal(t, srv.URL+"/en/graphql", a.opts.GraphQLURL)

	recs, err := a.services.Catalog.Recommendations(context.Background(), "5", 4)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Tartan", recs[0].Name)
	assert.Equal(t, int32(1), graphql.Load())
}
