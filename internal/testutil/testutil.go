package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/hsmerge/internal/domain"
	"github.com/lherron/hsmerge/internal/ledger"
)

// TempLedger creates a migrated ledger in a temporary directory for testing
func TempLedger(t *testing.T) (*ledger.Ledger, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test ledger: %v", err)
	}

	t.Cleanup(func() {
		l.Close()
	})

	return l, dbPath
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// WriteBatchCSV writes instructions as an input CSV and returns its path
func WriteBatchCSV(t *testing.T, dir string, batch []domain.MergeInstruction) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,company_name,key,action\n")
	for _, in := range batch {
		b.WriteString(string(in.ID) + "," + in.Name + "," + in.Key + "," + string(in.Action) + "\n")
	}
	return WriteFile(t, dir, "input_data.csv", b.String())
}
