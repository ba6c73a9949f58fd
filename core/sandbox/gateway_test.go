package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/hyperterse/codemode/core/shared/errors"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(baseURL string, timeout time.Duration) *Gateway {
	return NewGateway(NewGojaProvider(nil), Options{
		APIBaseURL: baseURL,
		APIName:    "Cloudflare",
		Timeout:    timeout,
	})
}

func apiRequest(script string) Request {
	return Request{Variant: VariantAPI, Script: script, Credential: "token-123", AccountID: "acc-1"}
}

func testIndex(t *testing.T) *spec.Index {
	t.Helper()
	idx, err := spec.NewIndex(&spec.ResolvedSpec{Paths: map[string]spec.PathItem{
		"/zones": {"get": {Summary: "List Zones", Tags: []string{"Zone"}}},
		"/accounts/{account_id}/workers/scripts": {
			"get": {Summary: "List Workers", Tags: []string{"Worker Script"}},
		},
	}})
	require.NoError(t, err)
	return idx
}

func TestRunReturnsValue(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 0)

	for _, script := range []string{"return 42", "async () => 42", "async function () { return 42 }"} {
		result := g.Run(context.Background(), apiRequest(script))
		require.Nil(t, result.Failure, script)
		assert.Equal(t, float64(42), result.Value, script)
	}
}

func TestRunUndefinedIsNull(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest("const x = 1;"))
	require.Nil(t, result.Failure)
	assert.Nil(t, result.Value)
}

func TestRunExposesAccountID(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest("return { id: api.accountId, arg: accountId }"))
	require.Nil(t, result.Failure)
	assert.Equal(t, map[string]any{"id": "acc-1", "arg": "acc-1"}, result.Value)
}

func TestRunThrownError(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest(`throw new Error("boom")`))
	require.NotNil(t, result.Failure)
	assert.Nil(t, result.Value)
	assert.Equal(t, apperrors.ErrCodeScriptExecution, result.Failure.Code)
	assert.Equal(t, "boom", result.Failure.Message)
}

func TestRunRejectedPromise(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest(`await Promise.resolve(); throw "plain";`))
	require.NotNil(t, result.Failure)
	assert.Equal(t, "plain", result.Failure.Message)
}

func TestRunRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones", r.URL.Path)
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"errors":[],"result":[{"id":"z1"}]}`))
	}))
	defer srv.Close()

	result := newTestGateway(srv.URL, 0).Run(context.Background(), apiRequest(
		`const res = await api.request({ path: "/zones", query: { status: "active" }, headers: { Authorization: "Bearer stolen" } });
		return res.result.map(z => z.id);`))
	require.Nil(t, result.Failure)
	assert.Equal(t, []any{"z1"}, result.Value)
}

func TestRunRequestFailureEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`))
	}))
	defer srv.Close()

	result := newTestGateway(srv.URL, 0).Run(context.Background(), apiRequest(`return await api.request({ path: "/user" })`))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeUpstream, result.Failure.Code)
	assert.Equal(t, "Cloudflare API error: 10000: Authentication error", result.Failure.Message)
}

func TestRunRequestPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "not here", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("addEventListener('fetch', () => {})"))
	}))
	defer srv.Close()
	g := newTestGateway(srv.URL, 0)

	result := g.Run(context.Background(), apiRequest(`return await api.request({ path: "/script" })`))
	require.Nil(t, result.Failure)
	assert.Equal(t, "addEventListener('fetch', () => {})", result.Value)

	result = g.Run(context.Background(), apiRequest(`return await api.request({ path: "/missing" })`))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeUpstream, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, "Cloudflare API error 404: not here")
}

func TestRunRequestSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"result":{"ok":1}}`))
	}))
	defer srv.Close()

	result := newTestGateway(srv.URL, 0).Run(context.Background(), apiRequest(
		`return (await api.request({ method: "post", path: "/zones", body: { name: "example.com" } })).result`))
	require.Nil(t, result.Failure)
	assert.Equal(t, map[string]any{"ok": float64(1)}, result.Value)
}

func TestRunQueryVariant(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 0)

	result := g.Run(context.Background(), Request{
		Variant: VariantQuery,
		Index:   testIndex(t),
		Script: `const out = [];
			for (const [path, item] of Object.entries(spec.paths)) {
				for (const [method, op] of Object.entries(item)) {
					if (op.tags && op.tags.includes("Zone")) out.push(method.toUpperCase() + " " + path);
				}
			}
			return out;`,
	})
	require.Nil(t, result.Failure)
	assert.Equal(t, []any{"GET /zones"}, result.Value)
}

func TestRunQueryVariantHasNoNetwork(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), Request{
		Variant: VariantQuery,
		Index:   testIndex(t),
		Script:  `return typeof fetch`,
	})
	require.Nil(t, result.Failure)
	assert.Equal(t, "undefined", result.Value)
}

func TestRunLowersNewerSyntax(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 0)

	tests := []struct {
		name   string
		script string
		want   any
	}{
		{"object spread", "const a = {x: 1}; return {...a, y: 2};", map[string]any{"x": float64(1), "y": float64(2)}},
		{"for await", "for await (const x of [Promise.resolve(1)]) { return x }", float64(1)},
		{"optional chaining", `return spec.paths["/zones"]?.get?.summary`, "List Zones"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.Run(context.Background(), Request{Variant: VariantQuery, Index: testIndex(t), Script: tt.script})
			require.Nil(t, result.Failure, "%+v", result.Failure)
			assert.Equal(t, tt.want, result.Value)
		})
	}
}

func TestRunBodyStartingWithFunctionDeclaration(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 0)

	for _, script := range []string{
		"function double(x) { return x * 2 }\nreturn double(21);",
		"async function main() { return 42 }\nreturn main();",
		"async function main() { return 42 }",
	} {
		result := g.Run(context.Background(), apiRequest(script))
		require.Nil(t, result.Failure, "%s: %+v", script, result.Failure)
		assert.Equal(t, float64(42), result.Value, script)
	}
}

func TestRunRequestRejectsRelativePath(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"result":null}`))
	}))
	defer srv.Close()

	result := newTestGateway(srv.URL, 0).Run(context.Background(), apiRequest(`return await api.request({ path: "@evil.example/x" })`))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeScriptExecution, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, `must start with "/"`)
	assert.Zero(t, hits.Load())
}

func TestRunTimeout(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 50*time.Millisecond)

	start := time.Now()
	result := g.Run(context.Background(), apiRequest("while (true) {}"))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeUpstream, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunSyntaxError(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest("return ("))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeScriptExecution, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, "SyntaxError")
}

func TestRunTypeScript(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(), apiRequest(
		"const xs: Array<number> = [1, 2, 3];\nreturn xs.reduce((a: number, b: number) => a + b, 0);"))
	require.Nil(t, result.Failure)
	assert.Equal(t, float64(6), result.Value)
}

func TestRunRejectsWrapperEscape(t *testing.T) {
	result := newTestGateway("http://127.0.0.1:1", 0).Run(context.Background(),
		apiRequest(`return 1 }); var CodemodeUnit = { evaluate: () => credential }; (async () => {`))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeScriptExecution, result.Failure.Code)
}

func TestRunIsolatesUnits(t *testing.T) {
	g := newTestGateway("http://127.0.0.1:1", 0)

	first := g.Run(context.Background(), apiRequest(`globalThis.leaked = "x"; return 1`))
	require.Nil(t, first.Failure)
	second := g.Run(context.Background(), apiRequest(`return typeof globalThis.leaked`))
	require.Nil(t, second.Failure)
	assert.Equal(t, "undefined", second.Value)
}

func TestRunRequiresCredential(t *testing.T) {
	req := apiRequest("return 1")
	req.Credential = ""
	_, err := newTestGateway("http://127.0.0.1:1", 0).Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}

type failingProvider struct{}

func (failingProvider) Create(context.Context, string, Recipe) (Handle, error) {
	return nil, errors.New("no capacity")
}

type panickingProvider struct{}

func (panickingProvider) Create(context.Context, string, Recipe) (Handle, error) {
	panic("provider exploded")
}

func TestExecuteProvisioningFailure(t *testing.T) {
	g := NewGateway(failingProvider{}, Options{})

	_, err := g.Execute(context.Background(), apiRequest("return 1"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeProvisioning))
	assert.Contains(t, err.Error(), "no capacity")
}

func TestRunRecoversProviderPanic(t *testing.T) {
	result := NewGateway(panickingProvider{}, Options{}).Run(context.Background(), apiRequest("return 1"))
	require.NotNil(t, result.Failure)
	assert.Equal(t, apperrors.ErrCodeInternalError, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, "provider exploded")
}
