package rediscas

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/testkit"
)

func testCAS(t *testing.T) *CAS {
	t.Helper()
	addr := os.Getenv("XDAO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("XDAO_TEST_REDIS_ADDR not set")
	}
	cas, err := New(Options{Addr: addr, Prefix: fmt.Sprintf("xdao:test:%d:", time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cas.Close() })
	if err := cas.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return cas
}

func TestRedisCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return testCAS(t)
	}, identity.SHA2_256, identity.SHAKE256)
}

func TestRedisCAS_TamperedValueRejected(t *testing.T) {
	cas := testCAS(t)
	ctx := context.Background()
	id := identity.MustIdentify([]byte("original"), identity.SHA2_256)
	if err := cas.client.Set(cas.key(id), "tampered", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := cas.Get(ctx, id); !storage.IsValidation(err) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if _, err := cas.Put(ctx, []byte("original"), identity.SHA2_256); err != storage.ErrImmutable {
		t.Fatalf("expected ErrImmutable, got %v", err)
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
