package spec

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec() *ResolvedSpec {
	return &ResolvedSpec{Paths: map[string]PathItem{
		"/accounts/{account_id}/workers/scripts": {
			"get":  {Summary: "List Workers", Tags: []string{"Worker Script", "workers"}},
			"post": {Summary: "Upload Worker", Tags: []string{"WORKERS"}},
		},
		"/zones/{zone_id}/dns_records": {
			"delete": {Summary: "Delete DNS Record"},
			"get":    {Summary: "List DNS Records", Tags: []string{"DNS Records"}},
		},
		"/zones":     {"get": {Summary: "List Zones", Tags: []string{"Zone"}}},
		"/user":      {"get": {}},
		"/":          {"get": {Summary: "Root"}},
		"/{id}/misc": {"trace": {}},
	}}
}

func TestIndexSourceIsDeterministic(t *testing.T) {
	a, err := NewIndex(sampleSpec())
	require.NoError(t, err)
	b, err := NewIndex(sampleSpec())
	require.NoError(t, err)

	assert.Equal(t, a.Source(), b.Source())
	assert.True(t, strings.HasPrefix(a.Source(), `{"paths":{"/":`))
	assert.Same(t, a.Get(), a.Get())
}

func TestNewIndexRejectsEmpty(t *testing.T) {
	_, err := NewIndex(nil)
	require.Error(t, err)
	_, err = NewIndex(&ResolvedSpec{})
	require.Error(t, err)
}

func TestInitLoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, WriteArtifact(path, sampleSpec()))

	first, err := Init(path)
	require.NoError(t, err)
	second, err := Init(filepath.Join(t.TempDir(), "other.json"))
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
