package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/altered"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/command"
	"github.com/nidhogg/nuka-drive/internal/desire"
	"github.com/nidhogg/nuka-drive/internal/learning"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

func parseKinds(args []string) ([]activity.Kind, error) {
	if len(args) == 0 {
		return append([]activity.Kind(nil), activity.All...), nil
	}
	kinds := make([]activity.Kind, 0, len(args))
	for _, a := range args {
		k, err := activity.Parse(a)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func newScoreCmd(opts *options) *cobra.Command {
	var hours float64
	var factors bool
	cmd := &cobra.Command{
		Use:   "score [kind...]",
		Short: "Print desire scores without deciding",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(args)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			in := desire.DefaultInputs()
			if hours > 0 {
				in.HoursSinceContact = hours
			}
			snap := s.engine.Snapshot()
			out := cmd.OutOrStdout()
			for _, k := range kinds {
				r := desire.Evaluate(k, snap, in)
				mark := ""
				if r.Score >= 1.0 {
					mark = " !"
				}
				fmt.Fprintf(out, "%-20s %.3f%s\n", k, r.Score, mark)
				if factors {
					for _, f := range r.Factors {
						fmt.Fprintf(out, "  %-22s %.3f\n", f.Name, f.Value)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours since last social contact")
	cmd.Flags().BoolVar(&factors, "factors", false, "show each factor")
	return cmd
}

func newDecideCmd(opts *options) *cobra.Command {
	var hours float64
	cmd := &cobra.Command{
		Use:   "decide <kind>",
		Short: "Sample one decision and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := activity.Parse(args[0])
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			d := s.engine.DecideDetailed(kind, autonomy.DecisionContext{HoursSinceContact: hours, Source: "drivectl"})
			if rec, ok := s.engine.Record(d.RecordID); ok {
				if err := s.store.AppendDecision(cmd.Context(), s.engine.ID(), rec); err != nil {
					return err
				}
			}
			if err := s.save(cmd.Context()); err != nil {
				return err
			}

			verdict := "declined"
			if d.Chosen {
				verdict = "chosen"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (p=%.3f, desire=%.3f, conflict=%.3f)\n",
				kind, verdict, d.Probability, d.Desire.Score, d.ConflictFactor)
			if d.DominantVoice != nil {
				fmt.Fprintf(out, "%s voice: %s\n", d.DominantVoice.Kind, d.DominantVoice.Message)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours since last social contact")
	return cmd
}

func newFeedbackCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <kind> <praised|corrected|not_chosen> [reason...]",
		Short: "Apply mentor feedback to an activity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := activity.Parse(args[0])
			if err != nil {
				return err
			}
			outcome, err := learning.ParseOutcome(args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			a := s.engine.ApplyFeedback(kind, outcome)
			if err := s.save(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s", a.Outcome, kind)
			if a.Reason != "" {
				fmt.Fprintf(out, " (%s)", a.Reason)
			}
			fmt.Fprintln(out)
			printDeltas(cmd, a.Deltas)
			return nil
		},
	}
}

func newAlterCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "alter [state]",
		Short: "Enter an altered state, or list them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				if m, ok := s.engine.AlteredState(); ok {
					fmt.Fprintf(out, "active: %s (%s left)\n", m.Kind, m.Remaining)
				}
				for _, k := range s.engine.AlteredKinds() {
					fmt.Fprintln(out, k)
				}
				return nil
			}

			m, err := s.engine.ActivateAlteredState(altered.Kind(strings.ToLower(args[0])))
			switch {
			case errors.Is(err, altered.ErrCooldownActive):
				fmt.Fprintln(out, command.CooldownMessage)
				return nil
			case err != nil:
				return err
			}
			if err := s.save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "entered %s for %s\n", m.Kind, m.Remaining)
			printDeltas(cmd, m.Effects)
			return nil
		},
	}
}

func newTickCmd(opts *options) *cobra.Command {
	var drain bool
	var count int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the altered-state timer and let mood settle",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			for range max(count, 1) {
				if s.engine.TickAlteredState() {
					fmt.Fprintln(out, "altered state expired")
				}
			}
			s.engine.DecayMood()
			if drain {
				s.engine.DrainEnergy()
			}
			if err := s.save(cmd.Context()); err != nil {
				return err
			}
			snap := s.engine.Snapshot()
			fmt.Fprintf(out, "energy %.2f, serenity %.2f, enthusiasm %.2f, melancholy %.2f\n",
				snap.Energy, snap.Mood.Serenity, snap.Mood.Enthusiasm, snap.Mood.Melancholy)
			return nil
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "also drain energy")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of one-minute ticks")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the agent summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.engine.Summary())
		},
	}
}

func printDeltas(cmd *cobra.Command, deltas map[traits.Field]float64) {
	fields := make([]string, 0, len(deltas))
	for f := range deltas {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %+.2f\n", f, deltas[traits.Field(f)])
	}
}
