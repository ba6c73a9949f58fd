package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperterse/codemode/core/runtime/mcp"
	"github.com/hyperterse/codemode/core/sandbox"
	"github.com/hyperterse/codemode/core/spec"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAccounts struct{}

func (fixedAccounts) Resolve(context.Context, string) (string, error) {
	return "acc-1", nil
}

// upstream echoes the Authorization header it received.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"success":true,"result":{"auth":%q}}`, r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRuntime(t *testing.T, port string, opts ...RuntimeOption) *Runtime {
	t.Helper()
	api := upstream(t)

	index, err := spec.NewIndex(&spec.ResolvedSpec{Paths: map[string]spec.PathItem{
		"/zones": {"get": {Summary: "List Zones"}},
	}})
	require.NoError(t, err)

	adapter, err := mcp.New(mcp.Options{
		Index: index,
		Runner: sandbox.NewGateway(sandbox.NewGojaProvider(api.Client()), sandbox.Options{
			APIBaseURL: api.URL,
			APIName:    "Cloudflare",
		}),
		Accounts: fixedAccounts{},
		APIName:  "Cloudflare",
		APIToken: "server-token",
	})
	require.NoError(t, err)

	rt, err := NewRuntime(adapter, index, "Cloudflare", port, opts...)
	require.NoError(t, err)
	return rt
}

// headerTransport adds a bearer token to every request.
type headerTransport struct {
	token string
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+h.token)
	return http.DefaultTransport.RoundTrip(req)
}

func TestRuntimeLifecycle_StartStop(t *testing.T) {
	port := freePort(t)
	rt := newTestRuntime(t, port)

	require.NoError(t, rt.StartAsync())
	stopped := false
	defer func() {
		if !stopped {
			_ = rt.Stop()
		}
	}()

	heartbeatURL := fmt.Sprintf("http://127.0.0.1:%s/heartbeat", port)
	require.NoError(t, waitForHTTP200(heartbeatURL, 5*time.Second))

	require.NoError(t, rt.Stop())
	stopped = true

	_, err := http.Get(heartbeatURL)
	assert.Error(t, err)
}

func TestRuntimeCORS(t *testing.T) {
	srv := httptest.NewServer(newTestRuntime(t, "0").Handler())
	defer srv.Close()

	preflight, err := http.NewRequest(http.MethodOptions, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "https://agent.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	get, err := http.NewRequest(http.MethodGet, srv.URL+"/heartbeat", nil)
	require.NoError(t, err)
	get.Header.Set("Origin", "https://agent.example")
	resp, err = http.DefaultClient.Do(get)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Mcp-Session-Id", resp.Header.Get("Access-Control-Expose-Headers"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRuntimeDocumentationRoutes(t *testing.T) {
	srv := httptest.NewServer(newTestRuntime(t, "0").Handler())
	defer srv.Close()

	body := getBody(t, srv.URL+"/llms.txt")
	assert.Contains(t, body, "- **GET** `/zones` - List Zones")

	body = getBody(t, srv.URL+"/openapi.json")
	assert.True(t, strings.HasPrefix(body, `{"paths":{"/zones"`))

	// Prime a request so the HTTP counter has a sample.
	_ = getBody(t, srv.URL+"/heartbeat")
	body = getBody(t, srv.URL+"/metrics")
	assert.Contains(t, body, "codemode_http_requests_total")
}

func TestRuntimeStreamableHTTPForwardsBearer(t *testing.T) {
	srv := httptest.NewServer(newTestRuntime(t, "0").Handler())
	defer srv.Close()

	ctx := context.Background()
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint:   srv.URL + "/mcp",
		HTTPClient: &http.Client{Transport: headerTransport{token: "caller-token"}},
	}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolExecute,
		Arguments: map[string]any{"code": `return (await api.request({ path: "/user" })).result.auth`},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Bearer caller-token", text.Text)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

func TestRuntimeRateLimitsMCPOnly(t *testing.T) {
	srv := httptest.NewServer(newTestRuntime(t, "0", WithRateLimiter(denyAll{}, 1, time.Minute)).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	assert.NoError(t, waitForHTTP200(srv.URL+"/heartbeat", time.Second))
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func freePort(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	return port
}

func waitForHTTP200(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s: %v", url, lastErr)
}
