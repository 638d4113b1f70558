package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/henrycmeen/dimo/internal/metsupdate"
	"github.com/henrycmeen/dimo/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMETS = `<?xml version="1.0" encoding="UTF-8"?>
<mets:mets xmlns:mets="http://www.loc.gov/METS/" xmlns:xlink="http://www.w3.org/1999/xlink">
  <mets:fileSec>
    <mets:fileGrp>
      <mets:file ID="F1" SIZE="0"><mets:FLocat xlink:href="file:content/A/doc1.pdf"/></mets:file>
      <mets:file ID="F2" SIZE="0"><mets:FLocat xlink:href="file:content/OLD/doc2.pdf"/></mets:file>
    </mets:fileGrp>
  </mets:fileSec>
</mets:mets>
`

func newTestWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range map[string]string{
		"content/A/doc1.pdf":   "0123456789",
		"content/NEW/doc2.pdf": "abc",
		"dias-mets.xml":        testMETS,
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func schemaArg(root string) string {
	return "--schema=" + filepath.Join(root, "none.xsd")
}

func TestUpdateMets_Run(t *testing.T) {
	root := newTestWorkspace(t)

	stdout, _, err := execute(t, "update-mets", "-w", root, schemaArg(root))
	require.NoError(t, err)

	assert.Contains(t, stdout, "METS update")
	assert.Contains(t, stdout, "DONE")
	assert.Contains(t, stdout, "run started")

	data, err := os.ReadFile(filepath.Join(root, "dias-mets.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `xlink:href="file:content/NEW/doc2.pdf"`)
	assert.Contains(t, string(data), `SIZE="10"`)
}

func TestUpdateMets_DryRunJSON(t *testing.T) {
	root := newTestWorkspace(t)

	stdout, stderr, err := execute(t, "update-mets", "--workspace", root, schemaArg(root), "--dry-run", "--json")
	require.NoError(t, err)

	var out metsupdate.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.DryRun)
	assert.Equal(t, metsupdate.StateDone, out.State)
	assert.Equal(t, 2, out.Entries)
	assert.Equal(t, 1, out.Relocated)
	assert.Len(t, out.Changes, 2)
	assert.Contains(t, stderr, "dry run, document left unchanged")

	data, err := os.ReadFile(filepath.Join(root, "dias-mets.xml"))
	require.NoError(t, err)
	assert.Equal(t, testMETS, string(data))
}

func TestUpdateMets_EnvConfig(t *testing.T) {
	root := newTestWorkspace(t)
	t.Setenv("DIMO_DRY_RUN", "true")
	t.Setenv("DIMO_SCHEMA", filepath.Join(root, "none.xsd"))

	_, _, err := execute(t, "update-mets", "-w", root)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "dias-mets.xml"))
	require.NoError(t, err)
	assert.Equal(t, testMETS, string(data))
}

func TestUpdateMets_DotEnvAndConfigFile(t *testing.T) {
	root := newTestWorkspace(t)
	require.NoError(t, os.Rename(filepath.Join(root, "dias-mets.xml"), filepath.Join(root, "package.xml")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dimo.yaml"), []byte("mets_file: package.xml\n"), 0o644))

	_, hadDryRun := os.LookupEnv("DIMO_DRY_RUN")
	require.False(t, hadDryRun)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("DIMO_DRY_RUN=true\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DIMO_DRY_RUN") })

	stdout, _, err := execute(t, "update-mets", "-w", root, schemaArg(root), "--json")
	require.NoError(t, err)

	var out metsupdate.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.DryRun)
	assert.Equal(t, filepath.Join(root, "package.xml"), out.DocumentPath)
}

func TestUpdateMets_InvalidFlags(t *testing.T) {
	root := newTestWorkspace(t)

	_, _, err := execute(t, "update-mets", "-w", root, "--tie-break", "random")
	assert.ErrorContains(t, err, "tie-break")

	_, _, err = execute(t, "update-mets", "-w", root, "--checksum-type", "CRC32")
	assert.Error(t, err)

	_, _, err = execute(t, "update-mets", "-w", root, "--workers", "-1")
	assert.Error(t, err)
}

func TestUpdateMets_Failure(t *testing.T) {
	root := t.TempDir()

	stdout, _, err := execute(t, "update-mets", "-w", root, schemaArg(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, metsupdate.ErrFilesystem)
	assert.Contains(t, stdout, "FAILED")
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestExitCode_Locked(t *testing.T) {
	err := error(&metsupdate.StageError{State: metsupdate.StateInit, Kind: metsupdate.KindLocked})
	assert.Equal(t, exitLocked, exitCode(err))
}

func TestInitCommand(t *testing.T) {
	root := t.TempDir()

	stdout, _, err := execute(t, "init", "-w", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Workspace ready")
	assert.DirExists(t, filepath.Join(root, "content"))
	assert.DirExists(t, filepath.Join(root, "logs"))
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.DetailedWithApp(), strings.TrimSpace(stdout))
}
