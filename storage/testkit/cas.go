package testkit

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunCASConformance exercises the storage.CAS contract.
//
// algs lists the algorithms the backend supports; sha2-256 is used when none
// are given.
func RunCASConformance(t *testing.T, newCAS NewCAS, algs ...identity.Algorithm) {
	t.Helper()
	if len(algs) == 0 {
		algs = []identity.Algorithm{identity.SHA2_256}
	}
	ctx := context.Background()

	for _, alg := range algs {
		alg := alg
		t.Run("PutGetRoundTrip/"+string(alg), func(t *testing.T) {
			cas := newCAS(t)
			want := []byte("hello, proofs storage")

			id, err := cas.Put(ctx, want, alg)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			wantID, err := identity.Identify(want, alg)
			if err != nil {
				t.Fatalf("Identify failed: %v", err)
			}
			if id != wantID {
				t.Fatalf("Put identity mismatch: got %s want %s", id, wantID)
			}

			got, err := cas.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("Get bytes mismatch")
			}
			if !id.Matches(got) {
				t.Fatalf("Get returned bytes not matching requested identity")
			}
		})
	}

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, b, algs[0])
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(ctx, b, algs[0])
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id := identity.MustIdentify(b, algs[0])

		if cas.Has(ctx, id) {
			t.Fatalf("Has returned true for missing identity")
		}
		_, err := cas.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(ctx, b, algs[0]); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(ctx, id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefIdentity", func(t *testing.T) {
		cas := newCAS(t)
		if cas.Has(ctx, identity.Undef) {
			t.Fatalf("Has should be false for undefined identity")
		}
		if _, err := cas.Get(ctx, identity.Undef); err == nil {
			t.Fatalf("Get should fail for undefined identity")
		}
	})

	t.Run("ConcurrentReads", func(t *testing.T) {
		cas := newCAS(t)
		ids := make([]identity.Identity, 8)
		for i := range ids {
			id, err := cas.Put(ctx, []byte{byte('a' + i)}, algs[0])
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			ids[i] = id
		}
		var wg sync.WaitGroup
		errs := make(chan error, len(ids)*4)
		for r := 0; r < 4; r++ {
			for _, id := range ids {
				wg.Add(1)
				go func(id identity.Identity) {
					defer wg.Done()
					if _, err := cas.Get(ctx, id); err != nil {
						errs <- err
					}
				}(id)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Get failed: %v", err)
		}
	})
}
