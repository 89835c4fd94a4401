package archive

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCS archives payloads to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS archive writing under bucket/prefix. It
// authenticates with Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "create storage client")
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Put writes data to the bucket and returns its gs:// reference.
func (g *GCS) Put(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	object := path
	if g.prefix != "" {
		object = g.prefix + "/" + path
	}

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", eris.Wrapf(err, "write gs://%s/%s", g.bucket, object)
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrapf(err, "close gs://%s/%s", g.bucket, object)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if err := g.client.Close(); err != nil {
		return eris.Wrap(err, "close storage client")
	}
	return nil
}
