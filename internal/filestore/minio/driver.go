// Package minio serves PDF reports from a folder of an S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/italolelis/pdfviewer/internal/filestore"
	"github.com/italolelis/pdfviewer/internal/logctx"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates the bucket folder holding the reports.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// Prefix is the folder inside the bucket, for example "Files/reports".
	Prefix string
}

// Driver is a MinIO implementation of filestore.Store.
type Driver struct {
	client *miniogo.Client
	bucket string
	prefix string
}

// New connects to the object store and checks that the bucket exists.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mapError(err, "failed to check bucket")
	}

	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &Driver{
		client: client,
		bucket: cfg.Bucket,
		prefix: folder(cfg.Prefix),
	}, nil
}

// folder normalises a prefix to either "" or a path ending in a single slash.
func folder(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}

	return prefix + "/"
}

func (d *Driver) key(name string) string {
	return d.prefix + name
}

// List returns the PDF objects directly inside the folder.
func (d *Driver) List(ctx context.Context) ([]string, error) {
	var names []string

	for obj := range d.client.ListObjects(ctx, d.bucket, miniogo.ListObjectsOptions{Prefix: d.prefix}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}

		name := path.Base(obj.Key)
		if strings.HasSuffix(obj.Key, "/") || !filestore.IsPDF(name) {
			continue
		}

		names = append(names, name)
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "listed pdf files", "count", len(names), "bucket", d.bucket, "prefix", d.prefix)

	return filestore.SortNames(names), nil
}

// Open streams one object. The object is stat'ed first so a missing key surfaces here
// rather than on the first read.
func (d *Driver) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := filestore.ValidateName(name); err != nil {
		return nil, err
	}

	obj, err := d.client.GetObject(ctx, d.bucket, d.key(name), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	if _, err := obj.Stat(); err != nil {
		obj.Close()

		return nil, mapError(err, "failed to stat object")
	}

	return obj, nil
}
