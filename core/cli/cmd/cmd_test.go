package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaFixture = `{
  "openapi": "3.0.3",
  "info": {"title": "Example", "version": "1.0.0"},
  "paths": {
    "/zones": {"get": {"summary": "List Zones", "responses": {"200": {"$ref": "#/components/responses/Ok"}}}},
    "/accounts/{account_id}/workers/scripts": {"get": {"summary": "List Workers", "tags": ["Worker Script"]}}
  },
  "components": {"responses": {"Ok": {"description": "ok"}}}
}`

func resetFlags(t *testing.T) {
	t.Helper()
	t.Setenv("CODEMODE_SPEC_PATH", "")
	t.Setenv("CODEMODE_TRANSPORT", "")
	t.Setenv("CODEMODE_API_NAME", "")
	t.Cleanup(func() {
		buildSource, buildOut, specPath, catalogOutput = "", "", "", "catalog.md"
	})
}

func TestBuildCatalogValidate(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	schema := filepath.Join(dir, "openapi.json")
	require.NoError(t, os.WriteFile(schema, []byte(schemaFixture), 0o644))
	artifact := filepath.Join(dir, "data", "spec.json")

	buildSource, buildOut = schema, artifact
	buildCmd.SetContext(context.Background())
	require.NoError(t, buildSpec(buildCmd, nil))
	require.FileExists(t, artifact)

	content, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "$ref")

	specPath = artifact
	catalogOutput = "-"
	var catalog bytes.Buffer
	catalogCmd.SetOut(&catalog)
	require.NoError(t, writeCatalog(catalogCmd, nil))
	assert.Contains(t, catalog.String(), "# Cloudflare API Endpoints")
	assert.Contains(t, catalog.String(), "- **GET** `/zones` - List Zones")

	var summary bytes.Buffer
	validateCmd.SetOut(&summary)
	require.NoError(t, validateSetup(validateCmd, nil))
	assert.Contains(t, summary.String(), "Endpoints: 2")
}

func TestCatalogWritesFile(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	schema := filepath.Join(dir, "openapi.json")
	require.NoError(t, os.WriteFile(schema, []byte(schemaFixture), 0o644))

	buildSource, buildOut = schema, filepath.Join(dir, "spec.json")
	buildCmd.SetContext(context.Background())
	require.NoError(t, buildSpec(buildCmd, nil))

	specPath = buildOut
	catalogOutput = filepath.Join(dir, "docs", "catalog.md")
	require.NoError(t, writeCatalog(catalogCmd, nil))

	content, err := os.ReadFile(catalogOutput)
	require.NoError(t, err)
	assert.Contains(t, string(content), "2 endpoints in 2 categories.")
}

func TestBuildRejectsNonOpenAPI(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	schema := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(schema, []byte(`{"swagger": "2.0", "info": {"title": "x", "version": "1"}, "paths": {}}`), 0o644))

	buildSource, buildOut = schema, filepath.Join(dir, "spec.json")
	buildCmd.SetContext(context.Background())
	assert.Error(t, buildSpec(buildCmd, nil))
	assert.NoFileExists(t, buildOut)
}

func TestValidateMissingArtifact(t *testing.T) {
	resetFlags(t)
	specPath = filepath.Join(t.TempDir(), "missing.json")
	assert.Error(t, validateSetup(validateCmd, nil))
}
