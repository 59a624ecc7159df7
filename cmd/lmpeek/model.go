package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/amanvirparhar/lmpeek/pkg/blobs"
	"github.com/amanvirparhar/lmpeek/pkg/config"
)

// defaultTokens is "Data visualization empowers users to" in the GPT-2 vocabulary.
const defaultTokens = "6601,32704,795,30132,2985,284"

type modelFlags struct {
	model      string
	blobserver string
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", envOr("LMPEEK_MODEL", "gpt2"),
		fmt.Sprintf("preset (%s), path to a config.json/yaml, or blob:<key> on the blob server", strings.Join(config.Presets(), ", ")))
	cmd.Flags().StringVar(&f.blobserver, "blobserver", envOr("BLOBSERVER", "http://blobserver"), "base url to blobserver")
}

// resolve loads the model configuration named by --model.
func (f *modelFlags) resolve(ctx context.Context) (config.Model, error) {
	log := klog.FromContext(ctx)

	if m, ok := config.Preset(f.model); ok {
		return m, nil
	}

	if key, ok := strings.CutPrefix(f.model, "blob:"); ok {
		blobserverURL, err := url.Parse(f.blobserver)
		if err != nil {
			return config.Model{}, fmt.Errorf("parsing blobserver url %q: %w", f.blobserver, err)
		}
		tmpDir, err := os.MkdirTemp("", "lmpeek")
		if err != nil {
			return config.Model{}, fmt.Errorf("creating temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		fetcher := &blobs.Fetcher{
			Reader:      &blobs.ModelServer{BlobserverURL: blobserverURL},
			MaxAttempts: 5,
		}
		localPath := filepath.Join(tmpDir, "config")
		if err := fetcher.Fetch(ctx, blobs.BlobInfo{Key: key}, localPath); err != nil {
			return config.Model{}, fmt.Errorf("downloading model config: %w", err)
		}
		log.Info("downloaded model config", "key", key)

		m, err := config.Load(localPath)
		if err != nil {
			return config.Model{}, err
		}
		if m.Name == "" {
			m.Name = key
		}
		return m, nil
	}

	m, err := config.Load(f.model)
	if err != nil {
		return config.Model{}, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(f.model), filepath.Ext(f.model))
	}
	return m, nil
}

// parseTokens parses "1,2,3;4,5,6" into a batch of sequences.
func parseTokens(s string) ([][]int64, error) {
	var batch [][]int64
	for _, seq := range strings.Split(s, ";") {
		var ids []int64
		for _, field := range strings.Split(seq, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing token %q: %w", field, err)
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("empty token sequence in %q", s)
		}
		if len(batch) > 0 && len(ids) != len(batch[0]) {
			return nil, fmt.Errorf("all sequences must have the same length, got %d and %d", len(batch[0]), len(ids))
		}
		batch = append(batch, ids)
	}
	return batch, nil
}
