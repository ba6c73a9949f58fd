package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/observability"
	"github.com/hyperterse/codemode/core/sandbox"
	sharedctx "github.com/hyperterse/codemode/core/shared/context"
	apperrors "github.com/hyperterse/codemode/core/shared/errors"
	"github.com/hyperterse/codemode/core/spec"
	"github.com/hyperterse/codemode/core/truncate"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	serverName    = "codemode"
	serverVersion = "1.0.0"

	ToolSearch  = "search"
	ToolExecute = "execute"
)

// Runner executes scripts in the sandbox.
type Runner interface {
	Execute(ctx context.Context, req sandbox.Request) (any, error)
}

// AccountResolver picks the account for a credential when the caller did not.
type AccountResolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// Options wires an Adapter.
type Options struct {
	Index    *spec.Index
	Runner   Runner
	Accounts AccountResolver
	// APIName appears in tool descriptions.
	APIName string
	// APIToken is used when the request carries no bearer token.
	APIToken string
	// AccountID, when set, is used for every execute call without account_id.
	AccountID string
}

// Adapter exposes the search and execute tools on an MCP SDK server.
type Adapter struct {
	opts   Options
	server *mcpsdk.Server
}

// New creates an MCP SDK adapter and registers both tools.
func New(opts Options) (*Adapter, error) {
	if opts.Index == nil {
		return nil, fmt.Errorf("mcp adapter requires a spec index")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("mcp adapter requires a runner")
	}
	if opts.Accounts == nil && opts.AccountID == "" {
		return nil, fmt.Errorf("mcp adapter requires an account resolver or a fixed account")
	}
	if opts.APIName == "" {
		opts.APIName = "remote"
	}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	adapter := &Adapter{opts: opts, server: server}
	adapter.registerTools()
	return adapter, nil
}

func (a *Adapter) Server() *mcpsdk.Server {
	return a.server
}

type searchArgs struct {
	Code string `json:"code"`
}

type executeArgs struct {
	Code      string `json:"code"`
	AccountID string `json:"account_id"`
}

func (a *Adapter) registerTools() {
	log := logger.New("mcp")

	a.server.AddTool(&mcpsdk.Tool{
		Name:        ToolSearch,
		Description: a.searchDescription(),
		InputSchema: codeSchema(false),
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return a.instrument(ctx, ToolSearch, func(ctx context.Context) (any, error) {
			var args searchArgs
			if err := decodeArgs(req, &args); err != nil {
				return nil, err
			}
			return a.search(ctx, args)
		}), nil
	})
	log.Debugf("Registered MCP tool: %s", ToolSearch)

	a.server.AddTool(&mcpsdk.Tool{
		Name:        ToolExecute,
		Description: a.executeDescription(),
		InputSchema: codeSchema(a.opts.AccountID == ""),
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return a.instrument(ctx, ToolExecute, func(ctx context.Context) (any, error) {
			var args executeArgs
			if err := decodeArgs(req, &args); err != nil {
				return nil, err
			}
			return a.execute(ctx, args, bearerToken(req))
		}), nil
	})
	log.Debugf("Registered MCP tool: %s", ToolExecute)
}

func (a *Adapter) search(ctx context.Context, args searchArgs) (any, error) {
	return a.opts.Runner.Execute(ctx, sandbox.Request{
		Variant: sandbox.VariantQuery,
		Script:  args.Code,
		Index:   a.opts.Index,
	})
}

func (a *Adapter) execute(ctx context.Context, args executeArgs, bearer string) (any, error) {
	credential := bearer
	if credential == "" {
		credential = a.opts.APIToken
	}
	if credential == "" {
		return nil, apperrors.NewInvalidInputError(
			"No API token available. Send an Authorization bearer token or set CODEMODE_API_TOKEN.")
	}

	accountID, err := a.accountFor(ctx, args.AccountID, credential)
	if err != nil {
		return nil, err
	}

	return a.opts.Runner.Execute(ctx, sandbox.Request{
		Variant:    sandbox.VariantAPI,
		Script:     args.Code,
		Credential: credential,
		AccountID:  accountID,
	})
}

// accountFor applies the precedence argument, configured account, resolver.
func (a *Adapter) accountFor(ctx context.Context, requested, credential string) (string, error) {
	log := logger.New("mcp")
	switch {
	case requested != "":
		return requested, nil
	case a.opts.AccountID != "":
		return a.opts.AccountID, nil
	case a.opts.Accounts == nil:
		return "", apperrors.NewInvalidInputError("account_id is required")
	}

	accountID, err := a.opts.Accounts.Resolve(ctx, credential)
	if err != nil {
		observability.RecordAccountLookup(ctx, string(apperrors.CodeOf(err)))
		return "", err
	}
	observability.RecordAccountLookup(ctx, "")
	log.InfofCtx(ctx, map[string]any{observability.AttrAccountSource: "resolver"}, "Resolved account for execute")
	return accountID, nil
}

// instrument runs fn under a span and converts its outcome to a tool result.
func (a *Adapter) instrument(ctx context.Context, tool string, fn func(context.Context) (any, error)) *mcpsdk.CallToolResult {
	log := logger.New("mcp")
	start := time.Now()
	ctx = sharedctx.WithToolName(ctx, tool)
	ctx, span := observability.StartSpan(ctx, "mcp.tool."+tool, attribute.String(observability.AttrToolName, tool))

	attrs := map[string]any{observability.AttrToolName: tool}
	if id := sharedctx.GetRequestID(ctx); id != "" {
		attrs[observability.AttrRequestID] = id
	}
	log.InfofCtx(ctx, attrs, "Calling MCP tool: %s", tool)
	value, err := fn(ctx)

	observability.RecordToolCall(ctx, tool, err == nil, float64(time.Since(start).Microseconds())/1000)
	observability.EndSpan(span, err)

	if err != nil {
		failAttrs := map[string]any{
			observability.AttrToolName:  tool,
			observability.AttrErrorType: string(apperrors.CodeOf(err)),
		}
		if apperrors.IsServerFault(err) {
			log.ErrorfCtx(ctx, failAttrs, "MCP tool %s failed: %v", tool, err)
		} else {
			log.WarnfCtx(ctx, failAttrs, "MCP tool %s failed", tool)
		}
		return toolError(apperrors.UserMessage(err))
	}

	text, cut := truncate.Apply(value)
	if cut {
		observability.RecordTruncation(ctx, tool)
	}
	log.InfofCtx(ctx, attrs, "MCP tool call completed successfully")

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: text},
		},
	}
}

func toolError(message string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "Error: " + message},
		},
		IsError: true,
	}
}

func decodeArgs(req *mcpsdk.CallToolRequest, target any) error {
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, target); err != nil {
			return apperrors.NewInvalidInputError(fmt.Sprintf("invalid params: %v", err))
		}
	}
	return nil
}

// bearerToken reads the credential of the HTTP request behind req, if any.
func bearerToken(req *mcpsdk.CallToolRequest) string {
	extra := req.GetExtra()
	if extra == nil || extra.Header == nil {
		return ""
	}
	return parseBearer(extra.Header)
}

func parseBearer(header http.Header) string {
	value := strings.TrimSpace(header.Get("Authorization"))
	if len(value) < 7 || !strings.EqualFold(value[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[7:])
}

func codeSchema(withAccount bool) map[string]any {
	properties := map[string]any{
		"code": map[string]any{
			"type":        "string",
			"description": "JavaScript or TypeScript async function body, or an async arrow function, whose return value is the tool result.",
		},
	}
	if withAccount {
		properties["account_id"] = map[string]any{
			"type":        "string",
			"description": "Account to run against. Optional when the token can see exactly one account.",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{"code"},
	}
}

func (a *Adapter) searchDescription() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search the %s API OpenAPI spec. Write JavaScript that queries `spec.paths` and returns the matching operations.\n\n", a.opts.APIName)
	sb.WriteString("`spec.paths` maps a path to an object of HTTP verbs; each operation has summary, description, operationId, tags, parameters, requestBody and responses with every $ref already inlined. ")
	sb.WriteString("Circular schemas appear as {\"$circular\": \"#/...\"}.\n\n")
	if summary := spec.CategorySummary(a.opts.Index.Get()); summary != "" {
		fmt.Fprintf(&sb, "Categories: %s\n\n", summary)
	}
	sb.WriteString("Example:\n")
	sb.WriteString("async () => {\n")
	sb.WriteString("  const out = [];\n")
	sb.WriteString("  for (const [path, item] of Object.entries(spec.paths)) {\n")
	sb.WriteString("    for (const [method, op] of Object.entries(item)) {\n")
	sb.WriteString("      if (op.tags?.some(t => t.toLowerCase() === \"workers\")) out.push({ method: method.toUpperCase(), path, summary: op.summary });\n")
	sb.WriteString("    }\n  }\n  return out;\n}")
	return sb.String()
}

func (a *Adapter) executeDescription() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execute JavaScript against the %s API. Use `search` first to find endpoints.\n\n", a.opts.APIName)
	sb.WriteString("Available in your code:\n")
	sb.WriteString("- `api.request({ method, path, query, body, headers, contentType, rawBody })` sends an authenticated request and returns the parsed response.\n")
	sb.WriteString("- `accountId` (also `api.accountId`) is the account this call runs against.\n\n")
	if a.opts.AccountID == "" {
		sb.WriteString("Pass `account_id` when the token can see more than one account.\n\n")
	}
	sb.WriteString("Example:\n")
	sb.WriteString("async () => {\n")
	sb.WriteString("  const res = await api.request({ path: `/accounts/${accountId}/workers/scripts` });\n")
	sb.WriteString("  return res.result.map(s => s.id);\n}")
	return sb.String()
}
