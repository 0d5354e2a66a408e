package blob

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS implements Store on a Google Cloud Storage bucket. Object writes are
// atomic server-side, which satisfies the pointer-replace requirement
// without a temp/rename dance.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSOptions configures the GCS store.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// NewGCS creates a GCS-backed store.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "gcs: create client")
	}
	return &GCS{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (g *GCS) Provider() string { return "gcs" }

func (g *GCS) object(key string) *storage.ObjectHandle {
	name := key
	if g.prefix != "" {
		name = strings.TrimSuffix(g.prefix, "/") + "/" + key
	}
	return g.client.Bucket(g.bucket).Object(name)
}

func (g *GCS) Put(ctx context.Context, key string, data []byte) error {
	w := g.object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "gcs: write %s", key)
	}
	if err := w.Close(); err != nil {
		return eris.Wrapf(err, "gcs: close writer %s", key)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "gcs: open %s", key)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "gcs: read %s", key)
	}
	return data, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	full := prefix
	if g.prefix != "" {
		full = strings.TrimSuffix(g.prefix, "/") + "/" + prefix
	}
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: full})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "gcs: list %s", prefix)
		}
		name := attrs.Name
		if g.prefix != "" {
			name = strings.TrimPrefix(name, strings.TrimSuffix(g.prefix, "/")+"/")
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "gcs: attrs %s", key)
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := g.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return eris.Wrapf(err, "gcs: delete %s", key)
	}
	return nil
}

// Append reads, appends, and rewrites the log object. GCS has no native
// append; the audit log is low-volume enough that read-modify-write with
// last-writer-wins is acceptable.
func (g *GCS) Append(ctx context.Context, key string, line []byte) error {
	existing, err := g.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	return g.Put(ctx, key, append(existing, line...))
}
