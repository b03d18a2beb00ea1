// Package discovery renders targets as an Alloy configuration and writes it
// where Alloy picks it up.
package discovery

import (
	"strings"

	"github.com/grafana/alloy/syntax/token"
	"github.com/grafana/alloy/syntax/token/builder"

	"github.com/cloudless/alloy-discovery/pkg/targets"
)

// Defaults for RenderOptions
const (
	DefaultSourceName   = "nomad_logs"
	DefaultWriteName    = "loki_endpoint"
	DefaultLokiEndpoint = "http://loki:3100/loki/api/v1/push"
)

// RenderOptions names the Alloy components in the generated file
type RenderOptions struct {
	// SourceName labels the loki.source.file block exporting the targets
	SourceName string

	// WriteName labels the loki.write block the source forwards to
	WriteName string

	// LokiEndpoint is the push URL of the loki.write endpoint
	LokiEndpoint string
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.SourceName == "" {
		o.SourceName = DefaultSourceName
	}
	if o.WriteName == "" {
		o.WriteName = DefaultWriteName
	}
	if o.LokiEndpoint == "" {
		o.LokiEndpoint = DefaultLokiEndpoint
	}
	return o
}

// Alloy component names written by Render
var (
	sourceBlock   = []string{"loki", "source", "file"}
	writeBlock    = []string{"loki", "write"}
	endpointBlock = []string{"endpoint"}
)

// Render returns the Alloy configuration for ts. Output depends only on its
// inputs, so rendering the same targets twice yields identical bytes.
func Render(ts []targets.Target, opts RenderOptions) []byte {
	opts = opts.withDefaults()

	file := builder.NewFile()

	source := builder.NewBlock(sourceBlock, opts.SourceName)
	source.Body().SetAttributeValue("targets", targetList(ts))
	source.Body().SetAttributeTokens("forward_to", []builder.Token{
		{Tok: token.LBRACK, Lit: "["},
		{Tok: token.LITERAL, Lit: receiverRef(opts.WriteName)},
		{Tok: token.RBRACK, Lit: "]"},
	})
	file.Body().AppendBlock(source)

	write := builder.NewBlock(writeBlock, opts.WriteName)
	endpoint := builder.NewBlock(endpointBlock, "")
	endpoint.Body().SetAttributeValue("url", opts.LokiEndpoint)
	write.Body().AppendBlock(endpoint)
	file.Body().AppendBlock(write)

	return file.Bytes()
}

// receiverRef is the expression exporting the receiver of a loki.write block
func receiverRef(writeName string) string {
	return strings.Join(writeBlock, ".") + "." + writeName + ".receiver"
}

// targetList converts ts to the list of objects loki.source.file expects.
// The builder sorts object keys and quotes every value.
func targetList(ts []targets.Target) []map[string]string {
	list := make([]map[string]string, 0, len(ts))
	for _, t := range ts {
		labels := make(map[string]string, len(targets.LabelKeys))
		for _, label := range t.Labels() {
			labels[label.Key] = label.Value
		}
		list = append(list, labels)
	}
	return list
}
