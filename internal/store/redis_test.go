package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)

	st, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestRedisStore(t)

	if _, err := st.Get(ctx, "apes", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := json.RawMessage(`{"name":"Ape #1"}`)
	if err := st.Put(ctx, "apes", "1", doc); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := st.Get(ctx, "apes", "1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("got %s, want %s", got, doc)
	}
}

func TestRedisStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := newTestRedisStore(t)

	st.Put(ctx, "apes", "1", json.RawMessage(`{"c":"apes"}`))
	st.Put(ctx, "birds", "1", json.RawMessage(`{"c":"birds"}`))

	ids, err := st.List(ctx, "apes")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected 1 token in apes, got %v", ids)
	}

	doc, _ := st.Get(ctx, "birds", "1")
	if string(doc) != `{"c":"birds"}` {
		t.Errorf("collections bled together: %s", doc)
	}
}

func TestNewRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "127.0.0.1:1", "", 0)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
