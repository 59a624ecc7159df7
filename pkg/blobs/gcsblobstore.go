package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// GCSBlobstore stores artifacts under gs://Bucket/Prefix/<key>.
type GCSBlobstore struct {
	Bucket string
	Prefix string
}

var _ Blobstore = (*GCSBlobstore)(nil)

// ParseGCSURL parses gs://bucket[/prefix].
func ParseGCSURL(u string) (*GCSBlobstore, error) {
	if !strings.HasPrefix(u, "gs://") {
		return nil, fmt.Errorf("%q must be a GCS bucket URL (gs://<bucketName>[/prefix])", u)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u, "gs://"), "/")
	if bucket == "" {
		return nil, fmt.Errorf("%q has no bucket name", u)
	}
	return &GCSBlobstore{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

func (j *GCSBlobstore) objectKey(info BlobInfo) string {
	if j.Prefix == "" {
		return info.Key
	}
	return path.Join(j.Prefix, info.Key)
}

// URL returns the gs:// URL of the object for info.
func (j *GCSBlobstore) URL(info BlobInfo) string {
	return "gs://" + j.Bucket + "/" + j.objectKey(info)
}

func (j *GCSBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	objectKey := j.objectKey(info)
	gcsURL := j.URL(info)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	obj := client.Bucket(j.Bucket).Object(objectKey)
	objAttrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			objAttrs = nil
			log.Info("object not found in GCS", "url", gcsURL)
		} else {
			return fmt.Errorf("getting object attributes for %q: %w", gcsURL, err)
		}
	}
	if objAttrs != nil {
		log.Info("object already exists in GCS", "url", gcsURL)
		return nil
	}

	log.Info("uploading artifact to GCS", "source", sourcePath, "destination", gcsURL)

	startedAt := time.Now()
	// DoesNotExist makes a concurrent upload of the same key lose cleanly.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}

	log.Info("uploaded artifact to GCS", "url", gcsURL, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))

	return nil
}

func (j *GCSBlobstore) Download(ctx context.Context, info BlobInfo, destinationPath string) error {
	log := klog.FromContext(ctx)

	gcsURL := j.URL(info)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading blob from GCS", "source", gcsURL, "destination", destinationPath)

	startedAt := time.Now()
	r, err := client.Bucket(j.Bucket).Object(j.objectKey(info)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("object %q: %w", gcsURL, os.ErrNotExist)
		}
		return fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, destinationPath)
	if err != nil {
		return fmt.Errorf("downloading from GCS: %w", err)
	}

	log.Info("downloaded blob from GCS", "source", gcsURL, "destination", destinationPath, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))

	return nil
}
