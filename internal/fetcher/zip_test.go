package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestExtractZIPSingle(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"prices_202001.csv": "permno,prc\n12490,42.5\n",
	})
	dest := t.TempDir()

	out, err := ExtractZIPSingle(zipPath, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "12490")
}

func TestExtractZIPSingle_MultipleFiles(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.csv": "1",
		"b.csv": "2",
	})

	_, err := ExtractZIPSingle(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 file")
}

func TestExtractZIPFile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"fundamentals.csv": "gvkey,atq\n001690,320.4\n",
		"readme.txt":       "extract notes",
	})

	out, err := ExtractZIPFile(zipPath, "fundamentals.csv", t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "001690")
}

func TestExtractZIPFile_NotFound(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"a.csv": "1"})

	_, err := ExtractZIPFile(zipPath, "missing.csv", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestExtractZIP_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"../escape.csv": "bad",
	})

	_, err := ExtractZIPSingle(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}
