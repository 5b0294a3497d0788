package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a format name. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or tsv)", s)
	}
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Render writes data in the configured structured format, or calls table for
// table and TSV output.
func (r *Renderer) Render(data interface{}, headers []string, rows [][]string) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatTSV:
		return r.RenderTSV(headers, rows)
	default:
		return r.RenderTable(headers, rows)
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if r.opts.Porcelain {
		return r.RenderTSV(headers, rows)
	}

	r.renderTableRow(headers, widths)
	r.renderTableSeparator(widths)
	for _, row := range rows {
		r.renderTableRow(row, widths)
	}

	return nil
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i == len(cells)-1 || i == len(widths)-1 {
			fmt.Fprint(r.writer, cell)
			break
		}
		fmt.Fprintf(r.writer, "%-*s  ", widths[i], cell)
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
