package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hupe1980/saathi/memory/sqlite"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the persisted memory bank",
	}
	cmd.AddCommand(newMemoryStatsCmd(c))
	return cmd
}

func newMemoryStatsCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the records of a SQLite memory journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Memory.Journal == "" {
				return errors.New("no memory journal configured: set memory.journal or pass --journal")
			}

			j, err := sqlite.Open(cmd.Context(), cfg.Memory.Journal)
			if err != nil {
				return err
			}
			defer j.Close()

			st, err := j.Stats(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			if _, err := fmt.Fprintf(w, "records: %d\nsize: %d bytes (budget %d)\n", st.Records, st.Size, cfg.Memory.Budget); err != nil {
				return err
			}
			for _, category := range slices.Sorted(maps.Keys(st.ByCategory)) {
				if _, err := fmt.Fprintf(w, "  %-20s %d\n", category, st.ByCategory[category]); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stats as JSON")

	return cmd
}
