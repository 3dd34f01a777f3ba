package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hupe1980/saathi"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/graph"
)

func newGraphCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect and validate composition graphs",
	}
	cmd.AddCommand(newGraphValidateCmd(), newGraphShowCmd(c))
	return cmd
}

func newGraphValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a graphs YAML file against the registered agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := saathi.New()
			if err != nil {
				return err
			}
			graphs, err := graph.DecodeGraphs(data, s.Predicates())
			if err != nil {
				return err
			}
			for _, capability := range slices.Sorted(maps.Keys(graphs)) {
				root := graphs[capability]
				if err := s.Agents().Check(root); err != nil {
					return fmt.Errorf("graph %s: %w", capability, err)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "ok  %-18s %s %q, agents %v\n",
					capability, root.Kind(), root.Name(), graph.Leaves(root)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newGraphShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <capability>",
		Short: "Print the graph bound to a capability as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			s, err := saathi.New(func(o *saathi.Options) { o.LoopIterations = cfg.Runs.LoopIterations })
			if err != nil {
				return err
			}
			if cfg.Graphs != "" {
				data, err := os.ReadFile(cfg.Graphs)
				if err != nil {
					return err
				}
				if err := s.LoadGraphs(data); err != nil {
					return err
				}
			}
			root, ok := s.Orchestrator().Graph(core.Capability(args[0]))
			if !ok {
				return fmt.Errorf("%w: %s", core.ErrUnknownCapability, args[0])
			}
			out, err := graph.Encode(root)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
