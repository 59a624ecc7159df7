package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"k8s.io/klog/v2"
)

// ModelServer reads model configuration blobs from a blob server over HTTP.
type ModelServer struct {
	// BlobserverURL is the base URL to the blobserver, typically http://blobserver
	BlobserverURL *url.URL

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

var _ BlobReader = &ModelServer{}

func (l *ModelServer) Download(ctx context.Context, info BlobInfo, destPath string) error {
	u := l.BlobserverURL.JoinPath(info.Key)
	return l.downloadToFile(ctx, u.String(), destPath)
}

func (l *ModelServer) downloadToFile(ctx context.Context, url string, destPath string) error {
	_, err := WriteFileAtomic(ctx, destPath, func(w io.Writer) error {
		return l.downloadToWriter(ctx, url, w)
	})
	if err != nil {
		return fmt.Errorf("downloading from %q: %w", url, err)
	}
	return nil
}

func (l *ModelServer) downloadToWriter(ctx context.Context, url string, w io.Writer) error {
	log := klog.FromContext(ctx)

	log.Info("downloading from url", "url", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	startedAt := time.Now()

	httpClient := l.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("blob not found: %w", os.ErrNotExist)
		}
		return fmt.Errorf("unexpected status downloading from upstream source: %v", resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("downloading from upstream source: %w", err)
	}

	log.Info("downloaded blob", "url", url, "bytes", n, "duration", time.Since(startedAt))

	return nil
}

// Fetcher downloads a blob, retrying transient failures.
type Fetcher struct {
	// Reader is the interface to fetch blobs
	Reader BlobReader

	// MaxAttempts is the number of times to attempt a download before failing
	MaxAttempts int

	// RetryDelay defaults to 5s.
	RetryDelay time.Duration
}

func (f *Fetcher) Fetch(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	delay := f.RetryDelay
	if delay == 0 {
		delay = 5 * time.Second
	}

	attempt := 0
	for {
		attempt++

		err := f.Reader.Download(ctx, info, destPath)
		if err == nil {
			return nil
		}

		if attempt >= f.MaxAttempts || errors.Is(err, os.ErrNotExist) {
			return err
		}

		log.Error(err, "downloading blob, will retry", "info", info, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
