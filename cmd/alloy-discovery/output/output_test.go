package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type row struct {
	Task   string `json:"task" yaml:"task"`
	Stream string `json:"stream" yaml:"stream"`
}

func TestNewOutputter(t *testing.T) {
	for _, format := range []string{"table", "json", "yaml"} {
		out, err := NewOutputter(format, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, Format(format), out.Format())
	}

	_, err := NewOutputter("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestOutputter_PrintJSON(t *testing.T) {
	var buf bytes.Buffer
	out, err := NewOutputter("json", &buf)
	require.NoError(t, err)

	require.NoError(t, out.Print([]row{{"web", "stdout"}}))

	var got []row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []row{{"web", "stdout"}}, got)
}

func TestOutputter_PrintYAML(t *testing.T) {
	var buf bytes.Buffer
	out, err := NewOutputter("yaml", &buf)
	require.NoError(t, err)

	require.NoError(t, out.Print([]row{{"web", "stderr"}}))

	var got []row
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []row{{"web", "stderr"}}, got)
}

func TestOutputter_TableRejectsPrint(t *testing.T) {
	out, err := NewOutputter("table", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Error(t, out.Print(nil))
}

func TestOutputter_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	out, err := NewOutputter("table", &buf)
	require.NoError(t, err)

	require.NoError(t, out.PrintTable([]string{"Task", "Stream"}, [][]string{{"web", "stdout"}}))
	assert.Contains(t, buf.String(), "web")
	assert.Contains(t, buf.String(), "stdout")
}
