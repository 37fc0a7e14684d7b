package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WritePartial writes size bytes to path, creating parent directories. It
// stands in for a partially downloaded file. A size <= 0 writes one byte.
func WritePartial(t testing.TB, path string, size int) []byte {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := bytes.Repeat([]byte{0x42}, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}
