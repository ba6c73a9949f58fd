package sandbox

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Variant selects the capabilities a unit is built with.
type Variant string

const (
	// VariantAPI exposes api.request against the remote API.
	VariantAPI Variant = "api"
	// VariantQuery exposes the resolved spec and nothing else.
	VariantQuery Variant = "query"
)

const (
	mainModuleName    = "unit.ts"
	specModuleName    = "spec.json"
	compatibilityDate = "2025-06-01"
	unitGlobal        = "CodemodeUnit"
	entryOperation    = "evaluate"
)

// RecipeConfig is the whitelisted configuration a unit may see. There is no
// credential field: credentials travel only as Invoke arguments.
type RecipeConfig struct {
	APIBaseURL string
	APIName    string
	AccountID  string
	// SpecJSON is the canonical resolved spec, embedded for VariantQuery.
	SpecJSON string
}

var functionExpression = regexp.MustCompile(`^\s*(async\s*)?(\(\s*\)\s*=>|function\b)`)

// scriptCallable returns the JS expression for an argument-less async
// callable running script. A script that is itself one function expression
// is called directly; anything else, including a body that starts with a
// function declaration, becomes the body of an async arrow function.
func scriptCallable(script string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(script), "; \t\r\n")
	if functionExpression.MatchString(trimmed) {
		candidate := "(" + trimmed + "\n)"
		if checkFunctionExpression(candidate) == nil {
			return candidate
		}
	}
	return "(async () => {\n" + script + "\n})"
}

// BuildRecipe assembles the unit source for variant around script.
func BuildRecipe(variant Variant, cfg RecipeConfig, script string) Recipe {
	var sb strings.Builder
	sb.WriteString("var " + unitGlobal + " = (function () {\n")
	sb.WriteString(preludeSource)

	modules := map[string]string{}
	var flags []string

	switch variant {
	case VariantQuery:
		modules[specModuleName] = cfg.SpecJSON
		sb.WriteString("  const spec = require(" + jsString(specModuleName) + ");\n\n")
		sb.WriteString("  function load(spec) {\n    return " + scriptCallable(script) + ";\n  }\n\n")
		sb.WriteString("  return {\n    " + entryOperation + ": async function () {\n")
		sb.WriteString("      try {\n        return __settle(await load(spec)());\n")
	default:
		flags = append(flags, FlagNetwork)
		sb.WriteString("  const config = Object.freeze({ apiBaseUrl: " + jsString(cfg.APIBaseURL) +
			", apiName: " + jsString(cfg.APIName) + " });\n")
		sb.WriteString("  const accountId = " + jsString(cfg.AccountID) + ";\n")
		sb.WriteString(requestSource)
		sb.WriteString("  function load(api, accountId) {\n    return " + scriptCallable(script) + ";\n  }\n\n")
		sb.WriteString("  return {\n    " + entryOperation + ": async function (credential) {\n")
		sb.WriteString("      try {\n        return __settle(await load(__createApi(credential), accountId)());\n")
	}

	sb.WriteString("      } catch (err) {\n        return __fail(err);\n      }\n    }\n  };\n})();\n")
	modules[mainModuleName] = sb.String()

	return Recipe{
		MainModule:         mainModuleName,
		Modules:            modules,
		CompatibilityDate:  compatibilityDate,
		CompatibilityFlags: flags,
	}
}

func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

// preludeSource captures builtins before caller code can replace them and
// defines the result marshalling helpers.
const preludeSource = `  const __stringify = JSON.stringify;
  const __parse = JSON.parse;
  const __create = Object.create;
  const __keys = Object.keys;
  const __fetch = typeof fetch === "function" ? fetch : undefined;

  function __settle(value) {
    const encoded = __stringify(value);
    return { ok: true, result: encoded === undefined ? "null" : encoded };
  }

  function __fail(err) {
    if (err instanceof Error) {
      return {
        ok: false,
        name: String(err.name || "Error"),
        error: String(err.message),
        stack: err.stack ? String(err.stack) : "",
      };
    }
    let message;
    try {
      message = typeof err === "string" ? err : __stringify(err);
    } catch (e) {
      message = undefined;
    }
    return { ok: false, name: "Error", error: message === undefined ? String(err) : message, stack: "" };
  }

`

// requestSource defines __createApi, which closes over the call-time
// credential and exposes api.request.
const requestSource = `
  function __upstreamError(message) {
    const err = new Error(message);
    err.name = "UpstreamError";
    return err;
  }

  function __formatErrors(errors) {
    if (!errors || errors.length === 0) {
      return "unknown error";
    }
    return errors.map(function (e) { return e.code + ": " + e.message; }).join(", ");
  }

  function __createApi(credential) {
    async function request(options) {
      const opts = options || {};
      const method = String(opts.method || "GET").toUpperCase();
      const path = opts.path === undefined || opts.path === null ? "" : String(opts.path);
      if (path !== "" && path.charAt(0) !== "/") {
        throw new Error("api.request path must start with \"/\": " + path);
      }
      let url = config.apiBaseUrl + path;

      if (opts.query) {
        const parts = [];
        for (const key of __keys(opts.query)) {
          const value = opts.query[key];
          if (value === undefined || value === null) {
            continue;
          }
          parts.push(encodeURIComponent(key) + "=" + encodeURIComponent(String(value)));
        }
        if (parts.length > 0) {
          url += (url.indexOf("?") === -1 ? "?" : "&") + parts.join("&");
        }
      }

      const headers = __create(null);
      if (opts.headers) {
        for (const key of __keys(opts.headers)) {
          if (key.toLowerCase() !== "authorization") {
            headers[key] = String(opts.headers[key]);
          }
        }
      }
      headers["Authorization"] = "Bearer " + credential;

      let body;
      if (opts.rawBody) {
        body = opts.body === undefined || opts.body === null ? undefined : String(opts.body);
        if (opts.contentType) {
          headers["Content-Type"] = opts.contentType;
        }
      } else if (opts.body !== undefined) {
        body = __stringify(opts.body);
        headers["Content-Type"] = opts.contentType || "application/json";
      }

      if (__fetch === undefined) {
        throw new Error("network access is not available in this unit");
      }

      let response;
      try {
        response = __fetch(url, { method: method, headers: headers, body: body });
      } catch (err) {
        throw __upstreamError(config.apiName + " API request failed: " + (err && err.message ? err.message : String(err)));
      }

      const contentType = String(response.headers["content-type"] || "");
      const text = response.text();
      if (contentType.indexOf("json") === -1) {
        if (!response.ok) {
          throw __upstreamError(config.apiName + " API error " + response.status + ": " + text);
        }
        return text;
      }

      let data;
      try {
        data = __parse(text);
      } catch (err) {
        throw __upstreamError(config.apiName + " API returned invalid JSON (status " + response.status + ")");
      }
      if (data && data.success === false) {
        throw __upstreamError(config.apiName + " API error: " + __formatErrors(data.errors));
      }
      return data;
    }

    return Object.freeze({ request: request, accountId: accountId, baseUrl: config.apiBaseUrl });
  }

`
