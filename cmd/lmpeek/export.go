package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/amanvirparhar/lmpeek/pkg/blobs"
	"github.com/amanvirparhar/lmpeek/pkg/export"
	"github.com/amanvirparhar/lmpeek/pkg/model/gpt2"
	"github.com/amanvirparhar/lmpeek/pkg/onnx"
)

type exportOptions struct {
	modelFlags
	output   string
	tokens   string
	float16  bool
	publish  string
	progress bool
}

func newExportCommand() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Trace one forward pass and write every intermediate value as an ONNX model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts)
		},
	}
	opts.modelFlags.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", envOr("LMPEEK_OUTPUT", ""), "output file (default <model>.onnx)")
	cmd.Flags().StringVar(&opts.tokens, "tokens", defaultTokens, "input token ids; separate batch entries with ';'")
	cmd.Flags().BoolVar(&opts.float16, "float16", false, "store captured values as float16")
	cmd.Flags().StringVar(&opts.publish, "publish", envOr("LMPEEK_PUBLISH", ""), "upload the artifact to gs://<bucket>[/prefix] after writing")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "show a progress bar while encoding")
	return cmd
}

func runExport(ctx context.Context, opts *exportOptions) error {
	log := klog.FromContext(ctx)

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

	var store *blobs.GCSBlobstore
	if opts.publish != "" {
		if store, err = blobs.ParseGCSURL(opts.publish); err != nil {
			return err
		}
	}

	output := opts.output
	if output == "" {
		output = cfg.Name + ".onnx"
	}

	model, err := gpt2.New(cfg)
	if err != nil {
		return err
	}

	sink := &onnx.FileSink{
		Path:    output,
		Float16: opts.float16,
		Metadata: map[string]string{
			"model":  cfg.Name,
			"layers": strconv.Itoa(cfg.Layers),
			"heads":  strconv.Itoa(cfg.Heads),
		},
	}
	if opts.progress {
		var bar *progressbar.ProgressBar
		sink.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("encoding"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			bar.Set(done)
			if done == total {
				bar.Finish()
			}
		}
	}

	log.Info("exporting", "model", cfg.Name, "layers", cfg.Layers, "heads", cfg.Heads, "output", output)
	result, err := export.Run(ctx, export.Options{
		Layers: cfg.Layers,
		Heads:  cfg.Heads,
		Tokens: tokens,
		Model:  model,
		Sink:   sink,
	})
	if err != nil {
		return err
	}

	if store != nil {
		info := blobs.BlobInfo{Key: filepath.Base(result.Artifact.Path)}
		if err := store.Upload(ctx, result.Artifact.Path, info); err != nil {
			return fmt.Errorf("publishing artifact: %w", err)
		}
		klog.Infof("published %q", store.URL(info))
	}

	fmt.Printf("exported %d values to %s (%s)\n", result.Slots, result.Artifact.Path, humanize.Bytes(uint64(result.Artifact.Bytes)))
	return nil
}
