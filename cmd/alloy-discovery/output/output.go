package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Outputter handles formatted output
type Outputter struct {
	format Format
	writer io.Writer
}

// NewOutputter creates a new outputter writing to w
func NewOutputter(format string, w io.Writer) (*Outputter, error) {
	switch Format(format) {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
	return &Outputter{
		format: Format(format),
		writer: w,
	}, nil
}

// Format returns the output format
func (o *Outputter) Format() Format {
	return o.format
}

// Print outputs data as JSON or YAML
func (o *Outputter) Print(data any) error {
	switch o.format {
	case FormatJSON:
		return o.printJSON(data)
	case FormatYAML:
		return o.printYAML(data)
	default:
		return fmt.Errorf("%s format requires custom formatting", o.format)
	}
}

// PrintTable prints rows under headers
func (o *Outputter) PrintTable(headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(o.writer)

	headerAny := make([]any, len(headers))
	for i, h := range headers {
		headerAny[i] = h
	}
	table.Header(headerAny...)

	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

func (o *Outputter) printJSON(data any) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (o *Outputter) printYAML(data any) error {
	encoder := yaml.NewEncoder(o.writer)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}
