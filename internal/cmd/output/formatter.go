// Package output renders command results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/safemelbourne/livemap/internal/cmd/table"
	"github.com/safemelbourne/livemap/pkg/errors"
)

// Format types for output.
type Format string

const (
	// FormatTable represents table output format.
	FormatTable Format = "table"
	// FormatJSON represents JSON output format.
	FormatJSON Format = "json"
	// FormatYAML represents YAML output format.
	FormatYAML Format = "yaml"
	// FormatWide represents wide table output format.
	FormatWide Format = "wide"
)

// Formatter writes data in one output format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// Tabular is implemented by results that know their own table layout.
type Tabular interface {
	TableData(wide bool) table.Data
}

// NewFormatter returns the formatter for format. Unknown formats render
// as a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: "  "}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{Wide: format == FormatWide}
	}
}

// JSONFormatter outputs JSON format.
type JSONFormatter struct {
	Indent string
}

// Format implements the Formatter interface for JSON output.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent != "" {
		encoder.SetIndent("", f.Indent)
	}
	return encoder.Encode(data)
}

// YAMLFormatter outputs YAML format.
type YAMLFormatter struct{}

// Format implements the Formatter interface for YAML output.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	out, err := yaml.MarshalWithOptions(data,
		yaml.Indent(2),
		yaml.IndentSequence(false),
	)
	if err != nil {
		return errors.WrapParse("yaml", "encoding output", err)
	}
	_, err = w.Write(out)
	return err
}

// TableFormatter renders table.Data, Tabular values and single structs as
// tables. Anything else falls back to JSON.
type TableFormatter struct {
	Wide bool
}

// Format implements the Formatter interface for table output.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case table.Data:
		return render(w, v)
	case *table.Data:
		return render(w, *v)
	case Tabular:
		return render(w, v.TableData(f.Wide))
	}
	if props, ok := properties(data); ok {
		return render(w, props)
	}
	return (&JSONFormatter{Indent: "  "}).Format(w, data)
}

func render(w io.Writer, data table.Data) error {
	config := tablewriter.Config{}
	if len(data.ColumnAlignment) > 0 {
		align := make([]tw.Align, len(data.ColumnAlignment))
		for i, a := range data.ColumnAlignment {
			align[i] = twAlign(a)
		}
		config.Header.Alignment = tw.CellAlignment{PerColumn: align}
		config.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	tbl := tablewriter.NewTable(w, tablewriter.WithConfig(config))
	if len(data.Headers) > 0 {
		tbl.Header(toAny(data.Headers)...)
	}
	for _, row := range data.Rows {
		if err := tbl.Append(toAny(row)...); err != nil {
			return err
		}
	}
	return tbl.Render()
}

func twAlign(a table.Align) tw.Align {
	switch a {
	case table.AlignLeft:
		return tw.AlignLeft
	case table.AlignCenter:
		return tw.AlignCenter
	case table.AlignRight:
		return tw.AlignRight
	default:
		return tw.Skip
	}
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

var titleCaser = cases.Title(language.English)

// properties lays a struct (or pointer to one) out as a Property/Value
// table, naming rows after their json tags.
func properties(data any) (table.Data, bool) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return table.Data{}, false
	}

	t := v.Type()
	out := table.Data{
		Headers:         []string{"Property", "Value"},
		ColumnAlignment: []table.Align{table.AlignLeft, table.AlignLeft},
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = titleCaser.String(strings.ReplaceAll(tag, "_", " "))
		}
		out.Rows = append(out.Rows, []string{name, fmt.Sprintf("%v", v.Field(i).Interface())})
	}
	return out, true
}

// DetectFormat returns the explicit format if set, otherwise table on a
// terminal and JSON when piped.
func DetectFormat(explicitFormat string) Format {
	if explicitFormat != "" {
		return Format(strings.ToLower(explicitFormat))
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable
	}
	return FormatJSON
}

// ParseFormat converts string to Format with validation.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(s))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatWide, "":
		return format, nil
	default:
		return "", errors.NewValidationError("format", s, "must be one of: table, json, yaml, wide")
	}
}
