package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSessionDir lays out a minimal browser session tree.
func buildSessionDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	profile := filepath.Join(dir, "Default")

	writeFile(t, filepath.Join(profile, "Cookies"), "cookie-db")
	writeFile(t, filepath.Join(profile, "Cookies-journal"), "journal")
	writeFile(t, filepath.Join(profile, "Local Storage", "leveldb", "000001.log"), "local-storage")
	writeFile(t, filepath.Join(profile, "IndexedDB", "wa.db", "data"), "indexed-db")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestArchiverRoundTrip(t *testing.T) {
	a := NewArchiver()
	src := buildSessionDir(t)

	blob, err := a.Pack(src)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, a.Unpack(blob, dst))

	content, err := os.ReadFile(filepath.Join(dst, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "cookie-db", string(content))

	content, err = os.ReadFile(filepath.Join(dst, "Default", "Local Storage", "leveldb", "000001.log"))
	require.NoError(t, err)
	assert.Equal(t, "local-storage", string(content))
}

func TestArchiverPackSkipsRegenerableState(t *testing.T) {
	a := NewArchiver()
	src := buildSessionDir(t)

	// Caches and GPU state regenerate on launch; they must not inflate
	// the blob.
	writeFile(t, filepath.Join(src, "Default", "Cache", "f_0001"), "cache-junk")
	writeFile(t, filepath.Join(src, "Default", "GPUCache", "data_0"), "gpu-junk")
	writeFile(t, filepath.Join(src, "DevToolsActivePort"), "9222")

	blob, err := a.Pack(src)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, a.Unpack(blob, dst))

	_, err = os.Stat(filepath.Join(dst, "Default", "Cache"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "Default", "GPUCache"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "DevToolsActivePort"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchiverPackToleratesMissingOptionalEntries(t *testing.T) {
	a := NewArchiver()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Default", "Cookies"), "cookie-db")
	writeFile(t, filepath.Join(dir, "Default", "Local Storage", "leveldb", "log"), "ls")

	blob, err := a.Pack(dir)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "restored")
	assert.NoError(t, a.Unpack(blob, dst))
}

func TestArchiverPackMissingProfile(t *testing.T) {
	a := NewArchiver()
	_, err := a.Pack(t.TempDir())
	assert.Error(t, err)
}

func TestArchiverPackEmptyProfile(t *testing.T) {
	a := NewArchiver()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Default"), 0o755))

	_, err := a.Pack(dir)
	var structural *StructuralError
	assert.True(t, errors.As(err, &structural), "expected structural error, got %v", err)
}

func TestArchiverUnpackVerifiesStructure(t *testing.T) {
	a := NewArchiver()

	// An archive without a cookie store packs fine but must fail
	// verification on unpack.
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Default", "Local Storage", "leveldb", "log"), "ls")

	blob, err := a.Pack(dir)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "restored")
	err = a.Unpack(blob, dst)
	var structural *StructuralError
	assert.True(t, errors.As(err, &structural), "expected structural error, got %v", err)
}

func TestArchiverUnpackReplacesTarget(t *testing.T) {
	a := NewArchiver()
	src := buildSessionDir(t)

	blob, err := a.Pack(src)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "restored")
	writeFile(t, filepath.Join(dst, "stale-file"), "stale")

	require.NoError(t, a.Unpack(blob, dst))
	_, err = os.Stat(filepath.Join(dst, "stale-file"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchiverVerify(t *testing.T) {
	a := NewArchiver()

	assert.NoError(t, a.Verify(buildSessionDir(t)))
	assert.Error(t, a.Verify(t.TempDir()))

	// Cookies without any storage directory is not a usable session.
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Default", "Cookies"), "cookie-db")
	assert.Error(t, a.Verify(dir))
}
