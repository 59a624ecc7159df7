package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// WriteFileAtomic streams write into a temp file next to destinationPath and
// renames it into place only if write and close both succeed. On failure the
// temp file is removed and destinationPath is left untouched.
func WriteFileAtomic(ctx context.Context, destinationPath string, write func(w io.Writer) error) (int64, error) {
	log := klog.FromContext(ctx)

	dir := filepath.Dir(destinationPath)
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(destinationPath)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil && !os.IsNotExist(err) {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error(err, "closing temp file", "path", tempFile.Name())
			}
		}
	}()

	counter := &countingWriter{w: tempFile}
	if err := write(counter); err != nil {
		return counter.n, err
	}

	if err := tempFile.Sync(); err != nil {
		return counter.n, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return counter.n, fmt.Errorf("closing temp file: %w", err)
	}
	shouldCloseTempFile = false

	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return counter.n, fmt.Errorf("renaming temp file: %w", err)
	}
	shouldDeleteTempFile = false

	return counter.n, nil
}

func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	return WriteFileAtomic(ctx, destinationPath, func(w io.Writer) error {
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("downloading from upstream source: %w", err)
		}
		return nil
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
