package parse

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lherron/hsmerge/internal/domain"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:  "JSON array",
			input: `[{"id": "1"}]`,
			want:  FormatJSON,
		},
		{
			name:    "invalid JSON returns error",
			input:   `[not valid json`,
			wantErr: true,
		},
		{
			name: "YAML sequence",
			input: `- id: "1"
  key: g1
  action: keep`,
			want: FormatYAML,
		},
		{
			name:  "CSV header",
			input: "id,company_name,key,action\n1,Acme,g1,keep\n",
			want:  FormatCSV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffid, company_name ,key,action,notes\n" +
		"101, Acme ,g1,keep,primary\n" +
		"102,Acme Inc,g1, merge\n" +
		",,,\n" +
		"201,Globex,g2,keep,\n"

	got, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() unexpected error: %v", err)
	}

	want := []domain.MergeInstruction{
		{ID: "101", Name: "Acme", Key: "g1", Action: domain.ActionKeep},
		{ID: "102", Name: "Acme Inc", Key: "g1", Action: domain.ActionMerge},
		{ID: "201", Name: "Globex", Key: "g2", Action: domain.ActionKeep},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseCSV()\n got: %+v\nwant: %+v", got, want)
	}
}

func TestParseCSV_NameAlias(t *testing.T) {
	got, err := ParseCSV(strings.NewReader("id,name,key,action\n1,Acme,g1,keep\n"))
	if err != nil {
		t.Fatalf("ParseCSV() unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Acme" {
		t.Errorf("expected name alias to populate company name, got %+v", got)
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "no id", header: "company_name,key,action"},
		{name: "no name", header: "id,key,action"},
		{name: "no key", header: "id,company_name,action"},
		{name: "no action", header: "id,company_name,key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.header + "\n")); err == nil {
				t.Error("expected error for missing column")
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	input := `[
		{"id": 101, "company_name": "Acme", "key": "g1", "action": "keep"},
		{"id": "102", "name": "Acme Inc", "key": "g1", "action": "merge"}
	]`
	got, err := ParseJSON([]byte(input))
	if err != nil {
		t.Fatalf("ParseJSON() unexpected error: %v", err)
	}
	want := []domain.MergeInstruction{
		{ID: "101", Name: "Acme", Key: "g1", Action: domain.ActionKeep},
		{ID: "102", Name: "Acme Inc", Key: "g1", Action: domain.ActionMerge},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseJSON()\n got: %+v\nwant: %+v", got, want)
	}
}

func TestParseJSON_MissingField(t *testing.T) {
	if _, err := ParseJSON([]byte(`[{"id": 1, "key": "g1"}]`)); err == nil {
		t.Error("expected error for missing action")
	}
}

func TestParseYAML(t *testing.T) {
	input := `- id: 101
  company_name: Acme
  key: g1
  action: keep
- id: "102"
  company_name: Acme Inc
  key: g1
  action: merge
`
	got, err := ParseYAML([]byte(input))
	if err != nil {
		t.Fatalf("ParseYAML() unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "101" || got[1].Action != domain.ActionMerge {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input_data.csv")
	if err := os.WriteFile(path, []byte("id,company_name,key,action\n1,Acme,g1,keep\n2,Acme Inc,g1,merge\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"input.csv":  FormatCSV,
		"INPUT.JSON": FormatJSON,
		"batch.yml":  FormatYAML,
		"batch.yaml": FormatYAML,
		"batch.txt":  "",
	}
	for path, want := range cases {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
