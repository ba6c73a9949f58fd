package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferCategory(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/accounts/{account_id}/workers/scripts", want: "workers"},
		{path: "/zones/{zone_id}/dns_records/{id}", want: "dns_records"},
		{path: "/zones", want: "zones"},
		{path: "/accounts", want: "accounts"},
		{path: "/user/tokens", want: "user"},
		{path: "/{id}/misc", want: "misc"},
		{path: "/", want: "root"},
		{path: "/{id}", want: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, InferCategory(tt.path))
		})
	}
}

func TestEndpointsOrderAndTags(t *testing.T) {
	endpoints := Endpoints(sampleSpec())
	require.Len(t, endpoints, 8)

	assert.Equal(t, "/", endpoints[0].Path)
	assert.Equal(t, []string{"root"}, endpoints[0].Tags)

	var workers []EndpointDescriptor
	for _, endpoint := range endpoints {
		if endpoint.Path == "/accounts/{account_id}/workers/scripts" {
			workers = append(workers, endpoint)
		}
	}
	require.Len(t, workers, 2)
	assert.Equal(t, "GET", workers[0].Method)
	assert.Equal(t, "POST", workers[1].Method)
	assert.Equal(t, []string{"Worker Script", "workers"}, workers[0].Tags)
	assert.Equal(t, []string{"WORKERS"}, workers[1].Tags)

	// "{" sorts after letters, so the placeholder-led path comes last.
	assert.Equal(t, "/{id}/misc", endpoints[len(endpoints)-1].Path)
	dns := endpoints[5:7]
	assert.Equal(t, "/zones/{zone_id}/dns_records", dns[0].Path)
	assert.Equal(t, "GET", dns[0].Method)
	assert.Equal(t, "DELETE", dns[1].Method)
	assert.Equal(t, []string{"dns_records"}, dns[1].Tags)
}

func TestGroupByCategory(t *testing.T) {
	groups := GroupByCategory(Endpoints(sampleSpec()))

	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.Name)
	}
	assert.Equal(t, []string{"dns_records", "misc", "root", "user", "workers", "zones"}, names)
	assert.Len(t, groups[0].Endpoints, 2)
}

func TestCatalog(t *testing.T) {
	out := Catalog(sampleSpec(), "Cloudflare")

	assert.Contains(t, out, "# Cloudflare API Endpoints\n")
	assert.Contains(t, out, "8 endpoints in 6 categories.")
	assert.Contains(t, out, "## workers\n\n- **GET** `/accounts/{account_id}/workers/scripts` - List Workers\n")
	assert.Contains(t, out, "- **GET** `/user`\n")

	assert.Equal(t, "dns_records (2), misc (1), root (1), user (1), workers (2), zones (1)", CategorySummary(sampleSpec()))
}
