// Package backup keeps snapshots of region images in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	snapshotExt     = ".img.br"
	snapshotTimeFmt = "20060102-150405"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// snapshots are stored under this prefix, "regionstore" if empty
	Prefix string
	// use http instead of https, for local minio
	Insecure     bool
	RequestTrace io.Writer
}

type Client struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

// Snapshot describes an uploaded image
type Snapshot struct {
	Key     string
	Size    int64
	Created time.Time
}

func (c *Config) validate() error {
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return errors.New("must provide access, secret, bucket and endpoint")
	}
	return nil
}

func New(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if err := c.validate(); err != nil {
		return nil, err
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	prefix := strings.Trim(c.Prefix, "/")
	if prefix == "" {
		prefix = "regionstore"
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
		Prefix: prefix,
	}, nil
}

// SnapshotKey returns the object key for a snapshot created at t
func SnapshotKey(prefix string, t time.Time, id uuid.UUID) string {
	name := t.UTC().Format(snapshotTimeFmt) + "-" + id.String() + snapshotExt
	return path.Join(prefix, name)
}

// ParseSnapshotKey returns creation time encoded in a key made by SnapshotKey
func ParseSnapshotKey(key string) (time.Time, bool) {
	name := path.Base(key)
	if !strings.HasSuffix(name, snapshotExt) || len(name) < len(snapshotTimeFmt) {
		return time.Time{}, false
	}
	t, err := time.Parse(snapshotTimeFmt, name[:len(snapshotTimeFmt)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func brotliCompress(d []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(d); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Push uploads a brotli-compressed snapshot of d and returns its key
func (c *Client) Push(ctx context.Context, d []byte) (string, error) {
	cd, err := brotliCompress(d)
	if err != nil {
		return "", err
	}
	key := SnapshotKey(c.Prefix, time.Now(), uuid.New())
	opts := minio.PutObjectOptions{
		ContentType:     "application/octet-stream",
		ContentEncoding: "br",
	}
	_, err = c.Client.PutObject(ctx, c.Bucket, key, bytes.NewReader(cd), int64(len(cd)), opts)
	if err != nil {
		return "", err
	}
	return key, nil
}

// List returns snapshots, newest first
func (c *Client) List(ctx context.Context) ([]Snapshot, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.Prefix + "/",
		Recursive: true,
	}
	var res []Snapshot
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		created, ok := ParseSnapshotKey(oi.Key)
		if !ok {
			continue
		}
		res = append(res, Snapshot{Key: oi.Key, Size: oi.Size, Created: created})
	}
	SortNewestFirst(res)
	return res, nil
}

// SortNewestFirst sorts by creation time, most recent first
func SortNewestFirst(a []Snapshot) {
	slices.SortFunc(a, func(x, y Snapshot) int {
		if n := y.Created.Compare(x.Created); n != 0 {
			return n
		}
		return strings.Compare(y.Key, x.Key)
	})
}

// Pull downloads and decompresses a snapshot
func (c *Client) Pull(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	d, err := io.ReadAll(brotli.NewReader(obj))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot '%s': %w", key, err)
	}
	return d, nil
}

func (c *Client) Remove(ctx context.Context, key string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, key, minio.RemoveObjectOptions{})
}
