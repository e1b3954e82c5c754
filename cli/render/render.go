// Package render selects and writes the output format of the msbuild-rar CLI.
//
// Format selection:
//   - a TTY defaults to table, anything else to json
//   - --format always wins; unknown formats are errors
//
// --no-color affects table output only. The TUI keeps its own styling.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ostorc/msbuild/cli/reader"
	"github.com/ostorc/msbuild/cli/tui"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a --format value. Empty means "caller decides".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from the --format and --no-color flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: os.Stdout}, nil
}

// NewRendererWithWriter creates a renderer writing to out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the TUI for view.
func (r *Renderer) RenderTUI(view string, data any) error {
	if !tui.IsTUISupported(view) {
		return fmt.Errorf("--tui is not supported for %s", view)
	}
	return tui.Run(view, data)
}

func (r *Renderer) renderTable(data any) error {
	switch v := data.(type) {
	case *reader.InspectBuildResponse:
		return r.renderBuild(v)
	case []reader.NodeItem:
		return r.renderNodes(v)
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice {
		return r.renderSliceTable(rv)
	}
	return r.renderKeyValues(rv)
}

func (r *Renderer) renderBuild(build *reader.InspectBuildResponse) error {
	rows := make([][]string, 0, len(build.Resolutions))
	for _, res := range build.Resolutions {
		rows = append(rows, []string{
			fmt.Sprintf("%d", res.NodeID),
			res.Outcome,
			fmt.Sprintf("%d", res.ExitCode),
			fmt.Sprintf("%dms", res.DurationMs),
			fmt.Sprintf("%d", len(res.ResolvedFiles)),
			fmt.Sprintf("%d", res.EventCount),
			fmt.Sprintf("%d", res.EventsDropped),
			res.Message,
		})
	}
	fmt.Fprintf(r.out, "build %s\n", build.BuildID)
	return r.writeTable([]string{"NODE", "OUTCOME", "EXIT", "DURATION", "RESOLVED", "EVENTS", "DROPPED", "MESSAGE"}, rows, 1)
}

func (r *Renderer) renderNodes(nodes []reader.NodeItem) error {
	if len(nodes) == 0 {
		_, err := fmt.Fprintln(r.out, "(no idle nodes)")
		return err
	}
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{fmt.Sprintf("%d", n.PID), n.State, n.StartedAt, n.Fingerprint, n.Endpoint})
	}
	return r.writeTable([]string{"PID", "STATE", "STARTED", "FINGERPRINT", "ENDPOINT"}, rows, 1)
}

// writeTable renders rows with lipgloss. statusCol is coloured by value
// unless colour is disabled.
func (r *Renderer) writeTable(headers []string, rows [][]string, statusCol int) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if !r.noColor {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				return tui.OutcomeStyle(rows[row][col]).Padding(0, 1)
			}
			return style
		})
	} else {
		t = t.StyleFunc(func(int, int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	_, err := fmt.Fprintln(r.out, t.Render())
	return err
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		_, err := fmt.Fprintln(r.out, "(no results)")
		return err
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	headers := fieldNames(v.Index(0))
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for i := range v.Len() {
		fmt.Fprintln(w, strings.Join(fieldValues(v.Index(i)), "\t"))
	}
	return w.Flush()
}

func (r *Renderer) renderKeyValues(v reflect.Value) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	v = indirect(v)

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			fmt.Fprintf(w, "%s:\t%s\n", fieldName(t.Field(i)), formatValue(v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), formatValue(iter.Value()))
		}
	case reflect.Invalid:
	default:
		fmt.Fprintf(w, "%v\n", v.Interface())
	}
	return w.Flush()
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func fieldNames(v reflect.Value) []string {
	v = indirect(v)
	if v.Kind() != reflect.Struct {
		return []string{"value"}
	}
	var names []string
	t := v.Type()
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			names = append(names, fieldName(t.Field(i)))
		}
	}
	return names
}

func fieldValues(v reflect.Value) []string {
	v = indirect(v)
	if v.Kind() != reflect.Struct {
		return []string{formatValue(v)}
	}
	var values []string
	t := v.Type()
	for i := range v.NumField() {
		if t.Field(i).IsExported() {
			values = append(values, formatValue(v.Field(i)))
		}
	}
	return values
}

// fieldName prefers the json tag name.
func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func formatValue(v reflect.Value) string {
	v = indirect(v)
	switch v.Kind() {
	case reflect.Invalid:
		return ""
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
