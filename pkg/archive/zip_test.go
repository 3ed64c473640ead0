package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, members map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.zip")
	file, err := os.Create(path)
	require.NoError(t, err)

	writer := zip.NewWriter(file)
	for name, content := range members {
		member, err := writer.Create(name)
		require.NoError(t, err)
		_, err = member.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return path
}

func TestExtractZip(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"stops.txt":  "stop_id\n1\n",
		"routes.txt": "route_id\nBLUE\n",
	})
	destDir := t.TempDir()

	require.NoError(t, ExtractZip(zipPath, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "stops.txt"))
	require.NoError(t, err)
	assert.Equal(t, "stop_id\n1\n", string(content))
	assert.FileExists(t, filepath.Join(destDir, "routes.txt"))
}

func TestExtractZipRejectsTraversalBeforeWriting(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"innocent.txt": "fine",
		"../evil.txt":  "escape",
	})
	destDir := filepath.Join(t.TempDir(), "out")

	err := ExtractZip(zipPath, destDir)

	assert.ErrorContains(t, err, "unsafe path")
	// All members are checked before any writes happen
	assert.NoFileExists(t, filepath.Join(destDir, "innocent.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(destDir), "evil.txt"))
}

func TestExtractZipRejectsAbsolutePaths(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"/etc/evil.txt": "escape"})

	err := ExtractZip(zipPath, t.TempDir())

	assert.ErrorContains(t, err, "unsafe path")
}

func TestEnforceMaxFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.bin")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o644))

	assert.NoError(t, EnforceMaxFileSize(path))
}

func TestExtractMemberEnforcesSizeCap(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"stops.txt": "stop_id\n" + strings.Repeat("1234567890\n", 200),
	})
	destDir := t.TempDir()

	reader, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer reader.Close()

	err = extractMember(reader.File[0], destDir, 64)

	assert.ErrorContains(t, err, "exceeds")
	assert.NoFileExists(t, filepath.Join(destDir, "stops.txt"))
}

func TestExtractMemberWithinCap(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"stops.txt": "stop_id\n1\n"})
	destDir := t.TempDir()

	reader, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, extractMember(reader.File[0], destDir, 64))
	assert.FileExists(t, filepath.Join(destDir, "stops.txt"))
}
