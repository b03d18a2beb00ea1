package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cloudless/alloy-discovery/cmd/alloy-discovery/output"
	"github.com/cloudless/alloy-discovery/pkg/targets"
)

// NewTargetsCommand creates the targets command
func NewTargetsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Print the targets for the current node without writing them",
		Long: `Resolve the node, list its allocations, and print the derived log targets.
Nothing is written to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd, v)
		},
	}

	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	cmd.Flags().String("node-id", "", "Node to inspect instead of the node of --alloc-id")

	return cmd
}

func runTargets(cmd *cobra.Command, v *viper.Viper) error {
	format, _ := cmd.Flags().GetString("output")
	out, err := output.NewOutputter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	client, err := newNomadClient(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	nodeID, _ := cmd.Flags().GetString("node-id")
	if nodeID == "" {
		if cfg.AllocID == "" {
			return errors.New("either --node-id or an allocation id (NOMAD_ALLOC_ID or --alloc-id) is required")
		}
		nodeID, err = client.ResolveNodeIdentity(ctx, cfg.AllocID)
		if err != nil {
			return err
		}
	}

	ts := targets.Derive(client.ListNodeAllocations(ctx, nodeID), cfg.LogDir)

	if out.Format() != output.FormatTable {
		return out.Print(ts)
	}

	rows := make([][]string, 0, len(ts))
	for _, t := range ts {
		rows = append(rows, []string{t.AllocID, t.Namespace, t.Job, t.TaskGroup, t.Task, t.Stream, t.Path})
	}
	if err := out.PrintTable([]string{"Alloc ID", "Namespace", "Job", "Group", "Task", "Stream", "Path"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d targets on node %s\n", len(ts), nodeID)
	return nil
}
