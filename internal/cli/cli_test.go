package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/mockbackend"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "Passw0rd"
)

// setup points wsctl at a fresh backend with its state in a memory
// filesystem and returns the backend URL.
func setup(t *testing.T) (*mockbackend.Server, string) {
	t.Helper()
	backend := mockbackend.New(mockbackend.WithEnv("TEST"))
	_, err := backend.SeedUser(testEmail, "Jane", testPassword,
		tenants.Tenant{ID: "ws-1", Name: "Acme", Role: "owner"},
		tenants.Tenant{ID: "ws-2", Name: "Globex"})
	require.NoError(t, err)

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	prev := appFs
	appFs = afero.NewMemMapFs()
	t.Cleanup(func() { appFs = prev })

	t.Setenv("WSCTL_HOME", "/state")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LANG", "en_US.UTF-8")
	return backend, srv.URL
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "wsctl version dev")
}

func TestLoginFlow(t *testing.T) {
	_, url := setup(t)

	t.Run("not signed in", func(t *testing.T) {
		out, err := run(t, "", "whoami", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Not signed in")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := run(t, "", "login", "--api-url", url, "--email", testEmail, "--password", "nope")
		require.EqualError(t, err, "Invalid email or password")
	})

	t.Run("login reads stdin", func(t *testing.T) {
		out, err := run(t, testEmail+"\n"+testPassword+"\n", "login", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Signed in as jane@example.com, workspace Acme (ws-1)")

		data, err := afero.ReadFile(appFs, "/state/workspace")
		require.NoError(t, err)
		require.Equal(t, "ws-1\n", string(data))
	})

	t.Run("session survives across runs", func(t *testing.T) {
		out, err := run(t, "", "whoami", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Jane <jane@example.com>")
		require.Contains(t, out, "session: durable")
		require.Contains(t, out, "workspace: ws-1")
	})

	t.Run("switch workspace", func(t *testing.T) {
		out, err := run(t, "", "workspaces", "use", "ws-2", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Active workspace: Globex (ws-2)")

		out, err = run(t, "", "ws", "list", "--api-url", url)
		require.NoError(t, err)
		require.Regexp(t, `\*\s+ws-2\s+Globex`, out)
		require.NotRegexp(t, `\*\s+ws-1`, out)

		_, err = run(t, "", "workspaces", "use", "ws-9", "--api-url", url)
		require.Error(t, err)
	})

	t.Run("logout", func(t *testing.T) {
		out, err := run(t, "", "logout", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Signed out")

		exists, err := afero.Exists(appFs, "/state/credentials.toml")
		require.NoError(t, err)
		require.False(t, exists)

		out, err = run(t, "", "whoami", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, "Not signed in")
	})
}

func TestLogin_NoRememberLastsOneRun(t *testing.T) {
	_, url := setup(t)

	_, err := run(t, "", "login", "--api-url", url, "--email", testEmail, "--password", testPassword, "--no-remember")
	require.NoError(t, err)

	exists, err := afero.Exists(appFs, "/state/credentials.toml")
	require.NoError(t, err)
	require.False(t, exists)

	out, err := run(t, "", "whoami", "--api-url", url)
	require.NoError(t, err)
	require.Contains(t, out, "Not signed in")
}

func TestRequestCmd(t *testing.T) {
	backend, url := setup(t)
	_, err := run(t, "", "login", "--api-url", url, "--email", testEmail, "--password", testPassword)
	require.NoError(t, err)

	t.Run("create and list secrets", func(t *testing.T) {
		out, err := run(t, "", "request", "POST", "/workspaces/ws-1/secrets", "-d", `{"name":"db"}`, "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, `"name": "db"`)

		out, err = run(t, "", "request", "GET", "/workspaces/ws-1/secrets?page=1", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, `"total": 1`)
	})

	t.Run("expired session is renewed", func(t *testing.T) {
		backend.ExpireAccessTokens()
		out, err := run(t, "", "request", "GET", "/workspaces", "--api-url", url)
		require.NoError(t, err)
		require.Contains(t, out, `"ws-2"`)
		require.EqualValues(t, 1, backend.RefreshCalls())
	})

	t.Run("workspace override", func(t *testing.T) {
		_, err := run(t, "", "request", "GET", "/workspaces/ws-2/secrets", "--api-url", url)
		require.Error(t, err)

		_, err = run(t, "", "request", "GET", "/workspaces/ws-2/secrets", "-w", "ws-2", "--api-url", url)
		require.NoError(t, err)
	})

	t.Run("invalid data", func(t *testing.T) {
		_, err := run(t, "", "request", "POST", "/workspaces/ws-1/secrets", "-d", "{", "--api-url", url)
		require.EqualError(t, err, "--data is not valid JSON")
	})

	t.Run("unreachable api", func(t *testing.T) {
		_, err := run(t, "", "request", "GET", "/workspaces", "--api-url", "http://127.0.0.1:1")
		require.ErrorContains(t, err, "cannot reach the API")
	})
}

func TestUserError(t *testing.T) {
	t.Setenv("LANG", "pt_BR.UTF-8")

	err := userError(apierror.Network(errors.New("connection refused")))
	require.EqualError(t, err, "cannot reach the API: connection refused")

	err = userError(apierror.InvalidRequest(errors.New("json: unsupported type: chan int")))
	require.EqualError(t, err, "invalid_request: json: unsupported type: chan int")

	err = userError(&apierror.Error{
		Kind:        apierror.KindHTTP,
		StatusCode:  401,
		Code:        "token_expired",
		MessageI18n: map[string]string{"en": "Session expired", "pt": "Sessão expirada"},
	})
	require.EqualError(t, err, "Sessão expirada; run 'wsctl login'")
}

func TestLanguage(t *testing.T) {
	for lang, want := range map[string]string{
		"pt_BR.UTF-8": "pt",
		"en-US":       "en",
		"C":           "c",
		"":            "",
	} {
		t.Setenv("LANG", lang)
		require.Equal(t, want, language(), lang)
	}
}
