package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/hyperterse/codemode/core/logger"
)

// maxResponseBytes bounds a single fetch response read into a unit.
const maxResponseBytes = 32 << 20

// GojaProvider builds units as in-process goja VMs. The compiled program is
// kept on the handle; every Invoke runs it in a brand new runtime.
type GojaProvider struct {
	httpClient *http.Client
}

// NewGojaProvider returns a provider whose units fetch through httpClient.
func NewGojaProvider(httpClient *http.Client) *GojaProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GojaProvider{httpClient: httpClient}
}

// Create transpiles and compiles the recipe's main module.
func (p *GojaProvider) Create(_ context.Context, id string, recipe Recipe) (Handle, error) {
	source, ok := recipe.Modules[recipe.MainModule]
	if !ok {
		return nil, fmt.Errorf("recipe has no main module %q", recipe.MainModule)
	}

	code, err := Transpile(recipe.MainModule, source)
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile(id+".js", code, false)
	if err != nil {
		var syntaxErr *goja.CompilerSyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &SyntaxError{Message: "SyntaxError: " + syntaxErr.Error()}
		}
		return nil, fmt.Errorf("failed to compile unit: %w", err)
	}

	data := make(map[string]string)
	for name, module := range recipe.Modules {
		if strings.HasSuffix(name, ".json") {
			data[name] = module
		}
	}

	return &gojaHandle{
		id:                id,
		program:           program,
		data:              data,
		network:           recipe.HasFlag(FlagNetwork),
		compatibilityDate: recipe.CompatibilityDate,
		httpClient:        p.httpClient,
	}, nil
}

type gojaHandle struct {
	id                string
	program           *goja.Program
	data              map[string]string
	network           bool
	compatibilityDate string
	httpClient        *http.Client
}

func (h *gojaHandle) ID() string {
	return h.id
}

// Invoke runs the unit in a fresh VM and calls its entry operation.
func (h *gojaHandle) Invoke(ctx context.Context, args ...any) (outcome *Outcome, err error) {
	log := logger.New("sandbox")
	vm := goja.New()

	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("execution unit %s panicked: %v", h.id, r)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	h.installConsole(vm)
	h.installRequire(vm)
	if h.network {
		h.installFetch(ctx, vm)
	}

	if _, err := vm.RunProgram(h.program); err != nil {
		return nil, h.wrapVMError(err)
	}

	unit := vm.Get(unitGlobal)
	if unit == nil || goja.IsUndefined(unit) || goja.IsNull(unit) {
		return nil, fmt.Errorf("execution unit %s does not define %s", h.id, unitGlobal)
	}
	entry, ok := goja.AssertFunction(unit.ToObject(vm).Get(entryOperation))
	if !ok {
		return nil, fmt.Errorf("execution unit %s does not export %s()", h.id, entryOperation)
	}

	jsArgs := make([]goja.Value, 0, len(args))
	for _, arg := range args {
		jsArgs = append(jsArgs, vm.ToValue(arg))
	}

	log.Debugf("Invoking unit %s (compatibility %s)", h.id, h.compatibilityDate)
	value, err := entry(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, h.wrapVMError(err)
	}

	if promise, ok := value.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			value = promise.Result()
		case goja.PromiseStateRejected:
			return collectFailure(vm, promise.Result()), nil
		default:
			return nil, fmt.Errorf("execution unit %s: %w", h.id, ErrUnsettled)
		}
	}
	return collect(vm, value), nil
}

// wrapVMError unwraps interrupts to the context error that caused them.
func (h *gojaHandle) wrapVMError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("execution unit %s interrupted: %w", h.id, cause)
		}
		return fmt.Errorf("execution unit %s interrupted: %v", h.id, interrupted.Value())
	}
	return fmt.Errorf("execution unit %s failed: %w", h.id, err)
}

func collect(vm *goja.Runtime, value goja.Value) *Outcome {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return &Outcome{OK: true, Result: json.RawMessage("null")}
	}
	obj := value.ToObject(vm)
	if !obj.Get("ok").ToBoolean() {
		return &Outcome{
			ErrorName: stringProp(obj, "name"),
			Error:     stringProp(obj, "error"),
			Trace:     stringProp(obj, "stack"),
		}
	}
	result := stringProp(obj, "result")
	if result == "" {
		result = "null"
	}
	return &Outcome{OK: true, Result: json.RawMessage(result)}
}

func collectFailure(vm *goja.Runtime, reason goja.Value) *Outcome {
	out := &Outcome{ErrorName: "Error", Error: formatJSValue(vm, reason)}
	if reason != nil && !goja.IsUndefined(reason) && !goja.IsNull(reason) {
		if obj := reason.ToObject(vm); obj != nil {
			out.Trace = stringProp(obj, "stack")
		}
	}
	return out
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func formatJSValue(vm *goja.Runtime, value goja.Value) string {
	switch {
	case value == nil || goja.IsUndefined(value):
		return "undefined"
	case goja.IsNull(value):
		return "null"
	}

	if obj, ok := value.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
			return msg.String()
		}
	}

	exported := value.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	b, err := json.Marshal(exported)
	if err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", exported)
}

func (h *gojaHandle) installConsole(vm *goja.Runtime) {
	log := logger.New("script")

	formatArgs := func(args []goja.Value) string {
		parts := make([]string, 0, len(args))
		for _, arg := range args {
			parts = append(parts, formatJSValue(vm, arg))
		}
		return strings.Join(parts, " ")
	}

	consoleFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			line := fmt.Sprintf("%s: %s", h.id, formatArgs(call.Arguments))
			switch level {
			case "error":
				log.Error(line)
			case "warn":
				log.Warn(line)
			case "info":
				log.Info(line)
			default:
				log.Debug(line)
			}
			return goja.Undefined()
		}
	}

	_ = vm.Set("console", map[string]any{
		"log":   consoleFn("log"),
		"debug": consoleFn("debug"),
		"info":  consoleFn("info"),
		"warn":  consoleFn("warn"),
		"error": consoleFn("error"),
	})
}

// installRequire exposes the recipe's data modules, parsed on first use.
func (h *gojaHandle) installRequire(vm *goja.Runtime) {
	loaded := map[string]goja.Value{}
	_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if v, ok := loaded[name]; ok {
			return v
		}
		source, ok := h.data[name]
		if !ok {
			panic(vm.NewTypeError("module %q is not available", name))
		}
		parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
		if !ok {
			panic(vm.NewTypeError("JSON.parse is not available"))
		}
		v, err := parse(goja.Undefined(), vm.ToValue(source))
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("module %q: %w", name, err)))
		}
		loaded[name] = v
		return v
	})
}

// installFetch installs a synchronous fetch(url, {method, headers, body})
// bound to the invocation context.
func (h *gojaHandle) installFetch(ctx context.Context, vm *goja.Runtime) {
	_ = vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(vm.NewTypeError("fetch(url, options) requires url"))
		}
		url := call.Argument(0).String()
		method := http.MethodGet
		var body io.Reader
		headers := map[string]string{}

		if opts := call.Argument(1); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
			obj := opts.ToObject(vm)
			if m := obj.Get("method"); m != nil && !goja.IsUndefined(m) {
				method = strings.ToUpper(m.String())
			}
			if b := obj.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
				body = strings.NewReader(b.String())
			}
			if hv := obj.Get("headers"); hv != nil && !goja.IsUndefined(hv) && !goja.IsNull(hv) {
				headerObj := hv.ToObject(vm)
				for _, key := range headerObj.Keys() {
					headers[key] = headerObj.Get(key).String()
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := h.httpClient.Do(req)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		defer resp.Body.Close()

		respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		respText := string(respBytes)

		respHeaders := make(map[string]string, len(resp.Header))
		for k, v := range resp.Header {
			respHeaders[strings.ToLower(k)] = strings.Join(v, ", ")
		}

		return vm.ToValue(map[string]any{
			"status":     resp.StatusCode,
			"statusText": http.StatusText(resp.StatusCode),
			"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
			"headers":    respHeaders,
			"text": func() string {
				return respText
			},
		})
	})
}
