package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/amanvirparhar/lmpeek/pkg/onnx"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the outputs and axis declarations of an exported model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := onnx.ReadFile(args[0])
			if err != nil {
				return err
			}
			printSummary(os.Stdout, summary)
			return nil
		},
	}
}

func printSummary(w io.Writer, s *onnx.Summary) {
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "producer: %s  ir: %d  opset: %d\n", s.Producer, s.IRVersion, s.Opset)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, s.Metadata[k])
	}
	fmt.Fprintln(w)

	var data [][]string
	for _, in := range s.Inputs {
		data = append(data, []string{"input", in.Name, elemTypeName(in.ElemType), formatDims(in.Dims)})
	}
	for _, out := range s.Outputs {
		data = append(data, []string{"output", out.Name, elemTypeName(out.ElemType), formatDims(out.Dims)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"KIND", "NAME", "TYPE", "DIMS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func formatDims(dims []onnx.Dim) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d.Param != "" {
			parts[i] = d.Param
		} else {
			parts[i] = strconv.FormatInt(d.Value, 10)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func elemTypeName(t int32) string {
	switch t {
	case onnx.Float:
		return "float32"
	case onnx.Float16:
		return "float16"
	case onnx.Int64:
		return "int64"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}
