package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type failingStore struct {
	*MemoryStore
	failRemove string
}

func (s *failingStore) Remove(ctx context.Context, key string) error {
	if key == s.failRemove {
		return ErrStoreUnavailable
	}
	return s.MemoryStore.Remove(ctx, key)
}

func TestVaultSaveAndPair(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())

	if _, ok, err := v.Pair(ctx); err != nil || ok {
		t.Fatalf("expected empty vault, ok=%v err=%v", ok, err)
	}

	if err := v.Save(ctx, Pair{AccessToken: "T1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := v.Pair(ctx)
	if err != nil || !ok {
		t.Fatalf("pair: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(Pair{AccessToken: "T1", RefreshToken: "R1"}, got); diff != "" {
		t.Fatalf("unexpected pair (-want +got):\n%s", diff)
	}
}

func TestVaultSaveKeepsRefreshWhenOmitted(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())

	_ = v.Save(ctx, Pair{AccessToken: "T1", RefreshToken: "R1"})
	if err := v.Save(ctx, Pair{AccessToken: "T2"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, _ := v.Pair(ctx)
	if diff := cmp.Diff(Pair{AccessToken: "T2", RefreshToken: "R1"}, got); diff != "" {
		t.Fatalf("unexpected pair (-want +got):\n%s", diff)
	}
}

func TestVaultSaveRejectsEmptyAccess(t *testing.T) {
	v := NewVault(NewMemoryStore())
	if err := v.Save(context.Background(), Pair{RefreshToken: "R1"}); !errors.Is(err, ErrEmptyAccessToken) {
		t.Fatalf("expected ErrEmptyAccessToken, got %v", err)
	}
}

func TestVaultClearRemovesSessionRemnants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v := NewVault(store, "user", "cartOwner", KeyAccessToken, "")

	_ = v.Save(ctx, Pair{AccessToken: "T1", RefreshToken: "R1"})
	_ = store.Set(ctx, "user", `{"id":7}`)
	_ = store.Set(ctx, "cartOwner", "7")
	_ = store.Set(ctx, "locale", "ko")

	if err := v.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if access, _ := v.AccessToken(ctx); access != "" {
		t.Fatalf("expected access token cleared, got %q", access)
	}
	if store.Len() != 1 {
		t.Fatalf("expected only unrelated key to remain, have %d keys", store.Len())
	}
}

func TestVaultClearAttemptsEveryKey(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore(), failRemove: KeyAccessToken}
	v := NewVault(store)
	_ = v.Save(ctx, Pair{AccessToken: "T1", RefreshToken: "R1"})

	err := v.Clear(ctx)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected joined ErrStoreUnavailable, got %v", err)
	}
	if refresh, _ := v.RefreshToken(ctx); refresh != "" {
		t.Fatalf("expected refresh token removed despite earlier failure, got %q", refresh)
	}
}

func TestVaultTokenSource(t *testing.T) {
	ctx := context.Background()
	v := NewVault(NewMemoryStore())
	ts := v.TokenSource(ctx)

	if _, err := ts.Token(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	_ = v.Save(ctx, Pair{AccessToken: "T1", RefreshToken: "R1"})
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "T1" || tok.RefreshToken != "R1" || tok.Type() != "Bearer" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if !tok.Valid() {
		t.Fatal("expected token without expiry to be valid")
	}
}
