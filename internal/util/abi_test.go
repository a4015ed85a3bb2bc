package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

func TestLoadABI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abi.json")
	require.NoError(t, writeFile(path, sampleABI))

	parsed, err := LoadABI(path)
	require.NoError(t, err)
	_, ok := parsed.Events["Transfer"]
	assert.True(t, ok)
}

func TestLoadABI_MissingFile(t *testing.T) {
	_, err := LoadABI("/nonexistent/path/abi.json")
	assert.Error(t, err)
}

func TestLoadABI_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, writeFile(path, "not json"))

	_, err := LoadABI(path)
	assert.Error(t, err)
}

func TestLoadABIFromHardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	artifact := `{"abi":` + sampleABI + `,"bytecode":"0x"}`
	require.NoError(t, writeFile(path, artifact))

	parsed, err := LoadABIFromHardhatArtifact(path)
	require.NoError(t, err)
	_, ok := parsed.Events["Transfer"]
	assert.True(t, ok)
}

func TestLoadABIFromHardhatArtifact_MissingABIField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	require.NoError(t, writeFile(path, `{"bytecode":"0x"}`))

	_, err := LoadABIFromHardhatArtifact(path)
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
