package s3cas

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/testkit"
)

// These tests need a reachable S3 endpoint, e.g. a local minio:
//
//	XDAO_TEST_S3_ENDPOINT=localhost:9000 XDAO_S3_ACCESS_KEY=minioadmin XDAO_S3_SECRET_KEY=minioadmin
func testClient(t *testing.T) (*minio.Client, string) {
	t.Helper()
	endpoint := os.Getenv("XDAO_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("XDAO_TEST_S3_ENDPOINT not set")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("XDAO_S3_ACCESS_KEY"), os.Getenv("XDAO_S3_SECRET_KEY"), ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("minio.New: %v", err)
	}
	bucket := fmt.Sprintf("xdao-proofs-test-%d", time.Now().UnixNano())
	ctx := context.Background()
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		t.Skipf("MakeBucket: %v", err)
	}
	return client, bucket
}

func TestS3CAS_Conformance(t *testing.T) {
	client, bucket := testClient(t)
	n := 0
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		n++
		cas, err := New(client, bucket, fmt.Sprintf("run-%d/", n))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return cas
	}, identity.SHA2_256, identity.BLAKE3)
}

func TestS3CAS_TamperedObjectRejected(t *testing.T) {
	client, bucket := testClient(t)
	ctx := context.Background()
	cas, err := New(client, bucket, "tamper/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := identity.MustIdentify([]byte("original"), identity.SHA2_256)
	// Write foreign bytes under the identity's key, bypassing Put.
	evil := []byte("tampered")
	if _, err := client.PutObject(ctx, bucket, cas.key(id), bytes.NewReader(evil), int64(len(evil)), minio.PutObjectOptions{}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := cas.Get(ctx, id); !storage.IsValidation(err) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(nil, "b", ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := Dial(Options{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
