package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudless/alloy-discovery/cmd/alloy-discovery/output"
	"github.com/cloudless/alloy-discovery/pkg/config"
	"github.com/cloudless/alloy-discovery/pkg/discovery"
	"github.com/cloudless/alloy-discovery/pkg/targets"
)

// NewCheckCommand creates the check command
func NewCheckCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Parse a generated discovery file and list its targets",
		Long:  "Parse a generated discovery file (default: the configured output file) and print the targets it contains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString(config.KeyOutputFile)
			if len(args) == 1 {
				path = args[0]
			}
			return runCheck(cmd, path)
		},
	}

	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")

	return cmd
}

func runCheck(cmd *cobra.Command, path string) error {
	format, _ := cmd.Flags().GetString("output")
	out, err := output.NewOutputter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read discovery file: %w", err)
	}

	parsed, err := discovery.ParseTargets(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if out.Format() != output.FormatTable {
		return out.Print(parsed)
	}

	rows := make([][]string, 0, len(parsed))
	for _, labels := range parsed {
		row := make([]string, 0, len(targets.LabelKeys))
		for _, key := range targets.LabelKeys {
			row = append(row, labels[key])
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	if err := out.PrintTable(targets.LabelKeys, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d targets in %s\n", len(parsed), path)
	return nil
}
