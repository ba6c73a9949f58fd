package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperterse/codemode/core/spec"
)

// GenerateLLMDocumentation renders markdown describing the MCP endpoint and
// every operation of the loaded API.
func GenerateLLMDocumentation(index *spec.Index, apiName, baseURL string) string {
	var sb strings.Builder

	sb.WriteString("# codemode\n\n")
	sb.WriteString(fmt.Sprintf("codemode exposes the %s API to agents through two MCP tools. ", apiName))
	sb.WriteString("`search` runs JavaScript against the resolved OpenAPI spec; `execute` runs JavaScript that calls the API with the server-held or request-supplied token.\n\n")

	sb.WriteString("## Endpoints\n\n")
	sb.WriteString("- **POST** `/mcp` - MCP Streamable HTTP endpoint (`tools/list`, `tools/call`)\n")
	sb.WriteString("- **GET** `/llms.txt` - This documentation\n")
	sb.WriteString("- **GET** `/openapi.json` - The resolved spec the `search` tool queries\n")
	sb.WriteString("- **GET** `/heartbeat` - Liveness check\n\n")

	sb.WriteString("## Example\n\n")
	sb.WriteString("```bash\n")
	sb.WriteString(fmt.Sprintf("curl -X POST %s/mcp \\\n", baseURL))
	sb.WriteString("  -H \"Content-Type: application/json\" \\\n")
	sb.WriteString("  -H \"Accept: application/json, text/event-stream\" \\\n")
	sb.WriteString("  -H \"Authorization: Bearer $API_TOKEN\" \\\n")
	sb.WriteString("  -d '{\"jsonrpc\": \"2.0\", \"method\": \"tools/call\", \"params\": {\"name\": \"search\", \"arguments\": {\"code\": \"return Object.keys(spec.paths).length\"}}, \"id\": 1}'\n")
	sb.WriteString("```\n\n")

	// Demote the catalog one heading level so it nests under this document.
	catalog := spec.Catalog(index.Get(), apiName)
	for _, line := range strings.Split(strings.TrimRight(catalog, "\n"), "\n") {
		if strings.HasPrefix(line, "#") {
			line = "#" + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// LLMTxtHandler serves GenerateLLMDocumentation. The document is rendered
// once since the index never changes.
func LLMTxtHandler(index *spec.Index, apiName, baseURL string) http.HandlerFunc {
	doc := GenerateLLMDocumentation(index, apiName, baseURL)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc))
	}
}
