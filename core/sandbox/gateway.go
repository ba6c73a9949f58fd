package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperterse/codemode/core/logger"
	"github.com/hyperterse/codemode/core/observability"
	sharedctx "github.com/hyperterse/codemode/core/shared/context"
	apperrors "github.com/hyperterse/codemode/core/shared/errors"
	"github.com/hyperterse/codemode/core/spec"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds one Invoke when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Gateway.
type Options struct {
	APIBaseURL string
	APIName    string
	Timeout    time.Duration
}

// Request is one script execution. It is never logged or stored.
type Request struct {
	Variant Variant
	Script  string
	// Credential and AccountID apply to VariantAPI.
	Credential string
	AccountID  string
	// Index applies to VariantQuery.
	Index *spec.Index
}

// Failure describes why a run produced no value.
type Failure struct {
	Code    apperrors.ErrorCode
	Message string
	Trace   string
}

// Result holds exactly one of Value or Failure.
type Result struct {
	Value   any
	Failure *Failure
}

// Err returns the failure as an *apperrors.AppError, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return apperrors.NewAppError(r.Failure.Code, r.Failure.Message, nil)
}

// Gateway runs scripts in fresh execution units obtained from a Provider.
type Gateway struct {
	provider Provider
	opts     Options
}

func NewGateway(provider Provider, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Gateway{provider: provider, opts: opts}
}

// Execute runs req and returns its value, or the failure as an AppError.
func (g *Gateway) Execute(ctx context.Context, req Request) (any, error) {
	result := g.Run(ctx, req)
	if err := result.Err(); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Run provisions a unit, injects the script, invokes it and collects the
// outcome. Every fault is reported as a Failure; Run never panics.
func (g *Gateway) Run(ctx context.Context, req Request) (result Result) {
	log := logger.New("sandbox")
	start := time.Now()
	id := fmt.Sprintf("codemode-%s-%s", req.Variant, uuid.NewString())

	ctx, span := observability.StartSpan(ctx, "sandbox.run",
		attribute.String(observability.AttrSandboxVariant, string(req.Variant)),
		attribute.String(observability.AttrSandboxUnitID, id),
	)
	defer func() {
		if r := recover(); r != nil {
			result = failed(apperrors.ErrCodeInternalError, fmt.Sprintf("execution failed: %v", r), "")
		}
		code := ""
		var spanErr error
		if result.Failure != nil {
			code = string(result.Failure.Code)
			spanErr = errors.New(result.Failure.Message)
		}
		observability.RecordSandboxRun(ctx, string(req.Variant), code, float64(time.Since(start).Microseconds())/1000)
		observability.EndSpan(span, spanErr)
	}()

	recipe, failure := g.inject(req)
	if failure != nil {
		return Result{Failure: failure}
	}

	handle, err := g.provider.Create(ctx, id, recipe)
	if err != nil {
		var syntaxErr *SyntaxError
		if errors.As(err, &syntaxErr) {
			return failed(apperrors.ErrCodeScriptExecution, syntaxErr.Message, "")
		}
		return failed(apperrors.ErrCodeProvisioning, fmt.Sprintf("failed to provision execution unit: %v", err), "")
	}
	attrs := map[string]any{
		observability.AttrSandboxVariant: string(req.Variant),
		observability.AttrSandboxUnitID:  handle.ID(),
	}
	if tool := sharedctx.GetToolName(ctx); tool != "" {
		attrs[observability.AttrToolName] = tool
	}
	log.InfofCtx(ctx, attrs, "Provisioned execution unit")

	invokeCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var args []any
	if req.Variant == VariantAPI {
		args = append(args, req.Credential)
	}
	outcome, err := handle.Invoke(invokeCtx, args...)
	if err != nil {
		return g.invokeFailure(err)
	}
	return collectOutcome(outcome)
}

// inject validates req and builds its recipe.
func (g *Gateway) inject(req Request) (Recipe, *Failure) {
	cfg := RecipeConfig{APIBaseURL: g.opts.APIBaseURL, APIName: g.opts.APIName}

	switch req.Variant {
	case VariantAPI:
		if req.Credential == "" {
			return Recipe{}, &Failure{Code: apperrors.ErrCodeInvalidInput, Message: "an API token is required to execute requests"}
		}
		cfg.AccountID = req.AccountID
	case VariantQuery:
		if req.Index == nil {
			return Recipe{}, &Failure{Code: apperrors.ErrCodeInternalError, Message: "spec index is not loaded"}
		}
		cfg.SpecJSON = req.Index.Source()
	default:
		return Recipe{}, &Failure{Code: apperrors.ErrCodeInvalidInput, Message: fmt.Sprintf("unknown execution variant %q", req.Variant)}
	}

	if err := CheckScript(req.Script); err != nil {
		return Recipe{}, &Failure{Code: apperrors.ErrCodeScriptExecution, Message: err.Error()}
	}
	return BuildRecipe(req.Variant, cfg, req.Script), nil
}

func (g *Gateway) invokeFailure(err error) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failed(apperrors.ErrCodeUpstream, fmt.Sprintf("execution timed out after %s", g.opts.Timeout), "")
	case errors.Is(err, context.Canceled):
		return failed(apperrors.ErrCodeUpstream, "execution was cancelled", "")
	case errors.Is(err, ErrUnsettled):
		return failed(apperrors.ErrCodeScriptExecution, "script did not settle: it awaited a promise that never resolved", "")
	default:
		return failed(apperrors.ErrCodeProvisioning, fmt.Sprintf("execution unit failed: %v", err), "")
	}
}

func collectOutcome(outcome *Outcome) Result {
	if outcome == nil {
		return failed(apperrors.ErrCodeProvisioning, "execution unit returned no outcome", "")
	}
	if !outcome.OK {
		code := apperrors.ErrCodeScriptExecution
		if outcome.ErrorName == "UpstreamError" {
			code = apperrors.ErrCodeUpstream
		}
		message := outcome.Error
		if message == "" {
			message = "script failed without an error message"
		}
		return failed(code, message, outcome.Trace)
	}

	var value any
	if err := json.Unmarshal(outcome.Result, &value); err != nil {
		return failed(apperrors.ErrCodeInternalError, fmt.Sprintf("failed to decode script result: %v", err), "")
	}
	return Result{Value: value}
}

func failed(code apperrors.ErrorCode, message, trace string) Result {
	return Result{Failure: &Failure{Code: code, Message: message, Trace: trace}}
}
