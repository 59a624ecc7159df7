package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/amanvirparhar/lmpeek/pkg/names"
	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

type namesOptions struct {
	modelFlags
	layers int
	heads  int
}

func newNamesCommand() *cobra.Command {
	opts := &namesOptions{}
	cmd := &cobra.Command{
		Use:   "names",
		Short: "List output names in export order without running the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layers, heads := opts.layers, opts.heads
			if !cmd.Flags().Changed("layers") || !cmd.Flags().Changed("heads") {
				cfg, err := opts.resolve(cmd.Context())
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("layers") {
					layers = cfg.Layers
				}
				if !cmd.Flags().Changed("heads") {
					heads = cfg.Heads
				}
			}
			return printNames(os.Stdout, layers, heads)
		},
	}
	opts.modelFlags.register(cmd)
	cmd.Flags().IntVar(&opts.layers, "layers", 0, "number of layers (overrides --model)")
	cmd.Flags().IntVar(&opts.heads, "heads", 0, "number of attention heads (overrides --model)")
	return cmd
}

func printNames(w io.Writer, layers, heads int) error {
	s, err := schema.Build(layers, heads)
	if err != nil {
		return err
	}
	outputNames := names.Generate(s)

	var data [][]string
	for i, name := range outputNames {
		slot := s.Slot(i)
		data = append(data, []string{strconv.Itoa(i), name, slot.Role.String(), slot.Axes.String()})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"INDEX", "NAME", "ROLE", "AXES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d names (layers=%d heads=%d)\n", len(outputNames), layers, heads)
	return nil
}
