package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seedLogFile(t *testing.T, path string, prefix string, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create seed: %v", err)
	}
	defer func() { _ = f.Close() }()
	for i := 0; i < n; i++ {
		_, _ = fmt.Fprintf(f, "{\"ts\":\"2026-01-01T00:00:00Z\",\"component\":\"test\",\"event\":\"%s%d\"}\n", prefix, i)
	}
}

func outputLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer func() { _ = f.Close() }()
	var ls []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		ls = append(ls, s.Text())
	}
	return ls
}

func TestExportWritesBundleHeader(t *testing.T) {
	src := filepath.Join(t.TempDir(), "seed.ndjson")
	seedLogFile(t, src, "e", 10)

	path, lines, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines != 10 {
		t.Errorf("lines: want 10, got %d", lines)
	}
	if !strings.HasPrefix(filepath.Base(path), "linereveal-diag-") {
		t.Errorf("unexpected output name %s", path)
	}

	out := outputLines(t, path)
	var bundle Bundle
	if err := json.Unmarshal([]byte(out[0]), &bundle); err != nil {
		t.Fatalf("unmarshal bundle header: %v", err)
	}
	if bundle.EntryCount != 10 {
		t.Errorf("entry_count: want 10, got %d", bundle.EntryCount)
	}
	if bundle.GoVersion == "" || bundle.OS == "" {
		t.Errorf("bundle missing runtime info: %+v", bundle)
	}
	if len(out) != 11 {
		t.Errorf("want 11 output lines, got %d", len(out))
	}
}

func TestExportIncludesRotatedGenerationFirst(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "reveal.ndjson")
	seedLogFile(t, src+".1", "old", 2)
	seedLogFile(t, src, "new", 3)

	path, lines, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines != 5 {
		t.Fatalf("lines: want 5, got %d", lines)
	}
	out := outputLines(t, path)[1:]
	if !strings.Contains(out[0], "old0") || !strings.Contains(out[4], "new2") {
		t.Errorf("entries out of order: %v", out)
	}
}

func TestExportMissingFile(t *testing.T) {
	_, _, err := Export("/nonexistent/path/reveal-debug.ndjson", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want os.ErrNotExist, got %v", err)
	}
}
