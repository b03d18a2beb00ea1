package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/grafana/alloy/syntax/ast"
	"github.com/grafana/alloy/syntax/parser"
	"github.com/grafana/alloy/syntax/vm"
)

// ParseTargets parses an Alloy configuration and evaluates the targets
// attribute of its first loki.source.file block. The whole file must be
// valid Alloy syntax, and every target must be an object of strings.
func ParseTargets(data []byte) ([]map[string]string, error) {
	file, err := parser.ParseFile("", data)
	if err != nil {
		return nil, fmt.Errorf("invalid alloy syntax: %w", err)
	}

	for _, stmt := range file.Body {
		block, ok := stmt.(*ast.BlockStmt)
		if !ok || !slices.Equal(block.Name, sourceBlock) {
			continue
		}

		for _, inner := range block.Body {
			attr, ok := inner.(*ast.AttributeStmt)
			if !ok || attr.Name.Name != "targets" {
				continue
			}

			result := []map[string]string{}
			if err := vm.New(attr.Value).Evaluate(&vm.Scope{}, &result); err != nil {
				return nil, fmt.Errorf("failed to evaluate targets: %w", err)
			}
			return result, nil
		}
		return nil, fmt.Errorf("%s block has no targets attribute", strings.Join(sourceBlock, "."))
	}

	return nil, fmt.Errorf("no %s block found", strings.Join(sourceBlock, "."))
}
