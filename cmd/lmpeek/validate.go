package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amanvirparhar/lmpeek/pkg/export"
	"github.com/amanvirparhar/lmpeek/pkg/model/gpt2"
	"github.com/amanvirparhar/lmpeek/pkg/names"
	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

type validateOptions struct {
	modelFlags
	tokens string
}

func newValidateCommand() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the model's trace lines up with the generated names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), os.Stdout, opts)
		},
	}
	opts.modelFlags.register(cmd)
	cmd.Flags().StringVar(&opts.tokens, "tokens", defaultTokens, "input token ids; separate batch entries with ';'")
	return cmd
}

func runValidate(ctx context.Context, w io.Writer, opts *validateOptions) error {
	cfg, err := opts.resolve(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tokens, err := parseTokens(opts.tokens)
	if err != nil {
		return err
	}

	s, err := schema.Build(cfg.Layers, cfg.Heads)
	if err != nil {
		return err
	}
	outputNames := names.Generate(s)
	if err := names.Validate(outputNames); err != nil {
		return err
	}

	synthetic, err := trace.Flatten(trace.Synthetic(s), s)
	if err != nil {
		return err
	}
	byName := make(map[string]any, len(outputNames))
	for i, name := range outputNames {
		byName[name] = synthetic[i]
	}
	regrouped, err := names.Regroup(s, byName)
	if err != nil {
		return err
	}
	roundTrip, err := trace.Flatten(regrouped, s)
	if err != nil {
		return err
	}
	for i := range roundTrip {
		if roundTrip[i] != synthetic[i] {
			return fmt.Errorf("name %q resolves to %v, expected %v", outputNames[i], roundTrip[i], synthetic[i])
		}
	}

	model, err := gpt2.New(cfg)
	if err != nil {
		return err
	}
	root, err := model.Evaluate(ctx, tokens)
	if err != nil {
		return fmt.Errorf("evaluating model: %w", err)
	}
	values, err := trace.Flatten(root, s)
	if err != nil {
		return err
	}
	if len(values) != len(outputNames) {
		return &export.LengthMismatchError{Values: len(values), Names: len(outputNames), Slots: s.Count()}
	}

	fmt.Fprintf(w, "ok: %d values and %d names align for layers=%d heads=%d\n", len(values), len(outputNames), cfg.Layers, cfg.Heads)
	return nil
}
