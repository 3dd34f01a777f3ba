package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/saathi"
	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/orchestrator"
)

func newTurnCmd(c *cli) *cobra.Command {
	var (
		capability string
		sessionID  string
		fields     []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "turn [text]",
		Short: "Run one user turn",
		Example: `  saathi turn --capability emotional-support --field 'emotions=[anxious, tired]' "exams are close"
  saathi turn --capability study-planning --field 'subjects=[math, physics]' --field weekly_hours=6 "help me plan"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}
			in := orchestrator.Input{Capability: core.Capability(capability), Fields: parsed}
			if len(args) == 1 {
				in.Text = args[0]
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			cfg, err := c.config()
			if err != nil {
				return err
			}
			s, err := saathi.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.HandleTurn(cmd.Context(), sessionID, in)
			if resp == nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return errors.Join(enc.Encode(resp), err)
			}
			return errors.Join(writeResponse(cmd, resp), err)
		},
	}

	cmd.Flags().StringVar(&capability, "capability", string(core.CapabilityEmotionalSupport), "capability to run")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default a new session)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "turn field as key=value; values are parsed as YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")

	return cmd
}

// parseFields turns key=value pairs into turn fields. Values are YAML, so
// lists and numbers keep their type.
func parseFields(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func writeResponse(cmd *cobra.Command, resp *orchestrator.Response) error {
	w := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(w, resp.Text); err != nil {
		return err
	}
	flags := []string{resp.Status.String()}
	if resp.Degraded {
		flags = append(flags, "degraded")
	}
	if resp.LowConfidence {
		flags = append(flags, "low confidence")
	}
	_, err := fmt.Fprintf(w, "\nsession: %s  run: %s  status: %s  iterations: %d  records: %d  elapsed: %s\n",
		resp.SessionID, resp.RunID, strings.Join(flags, ", "), resp.Iterations, len(resp.Committed), resp.Elapsed.Round(time.Millisecond))
	for _, f := range resp.Failures {
		if _, err := fmt.Fprintf(w, "failure: %s\n", f); err != nil {
			return err
		}
	}
	return err
}
