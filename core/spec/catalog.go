package spec

import (
	"fmt"
	"strings"
)

// Catalog renders a markdown list of every endpoint grouped by category.
func Catalog(spec *ResolvedSpec, title string) string {
	var sb strings.Builder
	endpoints := Endpoints(spec)
	groups := GroupByCategory(endpoints)

	sb.WriteString(fmt.Sprintf("# %s API Endpoints\n\n", title))
	sb.WriteString(fmt.Sprintf("%d endpoints in %d categories.\n\n", len(endpoints), len(groups)))

	for _, group := range groups {
		sb.WriteString(fmt.Sprintf("## %s\n\n", group.Name))
		for _, endpoint := range group.Endpoints {
			sb.WriteString(fmt.Sprintf("- **%s** `%s`", endpoint.Method, endpoint.Path))
			if endpoint.Summary != "" {
				sb.WriteString(" - " + endpoint.Summary)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// CategorySummary renders one line per category with its endpoint count.
func CategorySummary(spec *ResolvedSpec) string {
	groups := GroupByCategory(Endpoints(spec))
	parts := make([]string, 0, len(groups))
	for _, group := range groups {
		parts = append(parts, fmt.Sprintf("%s (%d)", group.Name, len(group.Endpoints)))
	}
	return strings.Join(parts, ", ")
}
