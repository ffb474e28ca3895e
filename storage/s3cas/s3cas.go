// Package s3cas stores content in an S3-compatible bucket.
//
// Objects are keyed by identity string under an optional prefix, so any
// HTTP-by-hash mirror of the bucket satisfies the same contract.
package s3cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// ObjectClient is the subset of the minio client the adapter uses. Only
// object-level operations are needed; bucket management is out of scope.
type ObjectClient interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	// Insecure disables TLS (local minio in dev and test).
	Insecure bool
}

// CAS is an S3-backed content store.
type CAS struct {
	client ObjectClient
	bucket string
	prefix string
}

var _ storage.CAS = (*CAS)(nil)

// Dial constructs a CAS talking to opts.Endpoint.
func Dial(opts Options) (*CAS, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("s3cas: endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: !opts.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3cas: %w", err)
	}
	return New(client, opts.Bucket, opts.Prefix)
}

// New wraps an existing client.
func New(client ObjectClient, bucket, prefix string) (*CAS, error) {
	if client == nil {
		return nil, errors.New("s3cas: nil client")
	}
	if bucket == "" {
		return nil, errors.New("s3cas: bucket is required")
	}
	return &CAS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (c *CAS) key(id identity.Identity) string { return c.prefix + id.String() }

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	if c.Has(ctx, id) {
		existing, err := c.Get(ctx, id)
		if err != nil || !bytes.Equal(existing, data) {
			return identity.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	_, err = c.client.PutObject(ctx, c.bucket, c.key(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return identity.Undef, fmt.Errorf("s3cas: put %s: %w", id, err)
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	obj, err := c.client.GetObject(ctx, c.bucket, c.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Matches(b) {
		return nil, storage.ErrMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id identity.Identity) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.client.StatObject(ctx, c.bucket, c.key(id), minio.StatObjectOptions{})
	return err == nil
}

func mapErr(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrNotFound
	}
	return fmt.Errorf("s3cas: %w", err)
}
