// Package storagetest holds the contract suite every storage backend
// must pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/storage"
)

// Factory builds a fresh, empty store for one test.
type Factory func(t *testing.T) storage.Store

// Run exercises the full storage contract against the backend.
func Run(t *testing.T, factory Factory) {
	t.Run("SetGetRoundTrip", func(t *testing.T) { testSetGet(t, factory(t)) })
	t.Run("MissingKeyIsNil", func(t *testing.T) { testMissingKey(t, factory(t)) })
	t.Run("MetadataVersioning", func(t *testing.T) { testVersioning(t, factory(t)) })
	t.Run("ValidationErrors", func(t *testing.T) { testValidation(t, factory(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("NamespaceIsolation", func(t *testing.T) { testNamespaceIsolation(t, factory(t)) })
	t.Run("SettingsScenario", func(t *testing.T) { testSettingsScenario(t, factory(t)) })
	t.Run("ListKeys", func(t *testing.T) { testListKeys(t, factory(t)) })
	t.Run("Info", func(t *testing.T) { testInfo(t, factory(t)) })
}

func testSetGet(t *testing.T, s storage.Store) {
	ctx := context.Background()

	value := map[string]interface{}{"title": "hello", "count": float64(3)}
	if err := s.Set(ctx, "item-1", value, storage.DefaultNamespace); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := s.Get(ctx, "item-1", storage.DefaultNamespace)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if got["title"] != "hello" || got["count"] != float64(3) {
		t.Errorf("round trip mismatch: got %v", got)
	}
}

func testMissingKey(t *testing.T, s storage.Store) {
	ctx := context.Background()

	raw, err := s.Get(ctx, "never-written", storage.DefaultNamespace)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil for missing key, got %s", raw)
	}
}

func testVersioning(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "counter", 1, storage.DefaultNamespace); err != nil {
		t.Fatalf("first Set failed: %v", err)
	}
	first, err := s.GetRecord(ctx, "counter", storage.DefaultNamespace)
	if err != nil || first == nil {
		t.Fatalf("GetRecord after first write: rec=%v err=%v", first, err)
	}
	if first.Meta.Version != 1 {
		t.Errorf("first write version = %d, want 1", first.Meta.Version)
	}
	if first.Meta.Schema != storage.SchemaVersion {
		t.Errorf("schema = %q, want %q", first.Meta.Schema, storage.SchemaVersion)
	}

	if err := s.Set(ctx, "counter", 2, storage.DefaultNamespace); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	second, err := s.GetRecord(ctx, "counter", storage.DefaultNamespace)
	if err != nil || second == nil {
		t.Fatalf("GetRecord after second write: rec=%v err=%v", second, err)
	}
	if second.Meta.Version != 2 {
		t.Errorf("second write version = %d, want 2", second.Meta.Version)
	}
	if !second.Meta.Created.Equal(first.Meta.Created) {
		t.Errorf("created changed across writes: %v -> %v", first.Meta.Created, second.Meta.Created)
	}
	if second.Meta.Updated.Before(first.Meta.Updated) {
		t.Errorf("updated went backwards: %v -> %v", first.Meta.Updated, second.Meta.Updated)
	}
}

func testValidation(t *testing.T, s storage.Store) {
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"empty key", func() error { return s.Set(ctx, "", 1, storage.DefaultNamespace) }},
		{"bad key chars", func() error { return s.Set(ctx, "has space", 1, storage.DefaultNamespace) }},
		{"bad namespace", func() error { return s.Set(ctx, "k", 1, "Not-Valid!") }},
		{"get bad key", func() error { _, err := s.Get(ctx, "a.b", storage.DefaultNamespace); return err }},
		{"unserializable value", func() error { return s.Set(ctx, "k", func() {}, storage.DefaultNamespace) }},
	}

	for _, tc := range cases {
		err := tc.call()
		if err == nil {
			t.Errorf("%s: expected validation error, got nil", tc.name)
			continue
		}
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: got %T (%v), want *domain.ValidationError", tc.name, err, err)
		}
	}
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "gone", "soon", storage.DefaultNamespace); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete(ctx, "gone", storage.DefaultNamespace); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	raw, err := s.Get(ctx, "gone", storage.DefaultNamespace)
	if err != nil || raw != nil {
		t.Errorf("key survived delete: raw=%s err=%v", raw, err)
	}

	// Deleting again must not be an error.
	if err := s.Delete(ctx, "gone", storage.DefaultNamespace); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "never-existed", storage.DefaultNamespace); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func testNamespaceIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v1", "ns1"); err != nil {
		t.Fatalf("Set ns1 failed: %v", err)
	}
	if err := s.Set(ctx, "k", "v2", "ns2"); err != nil {
		t.Fatalf("Set ns2 failed: %v", err)
	}

	var v1, v2 string
	raw1, err := s.Get(ctx, "k", "ns1")
	if err != nil {
		t.Fatalf("Get ns1 failed: %v", err)
	}
	raw2, err := s.Get(ctx, "k", "ns2")
	if err != nil {
		t.Fatalf("Get ns2 failed: %v", err)
	}
	json.Unmarshal(raw1, &v1)
	json.Unmarshal(raw2, &v2)
	if v1 != "v1" || v2 != "v2" {
		t.Errorf("namespace bleed: ns1=%q ns2=%q", v1, v2)
	}

	// Clearing one namespace must not touch the other.
	if err := s.Clear(ctx, "ns1"); err != nil {
		t.Fatalf("Clear ns1 failed: %v", err)
	}
	raw1, _ = s.Get(ctx, "k", "ns1")
	if raw1 != nil {
		t.Error("ns1 not cleared")
	}
	raw2, _ = s.Get(ctx, "k", "ns2")
	if raw2 == nil {
		t.Error("ns2 lost data when ns1 was cleared")
	}
}

func testSettingsScenario(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "user", "Alice", "settings"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := s.Get(ctx, "user", "settings")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || name != "Alice" {
		t.Errorf("got %q (err %v), want Alice", name, err)
	}

	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	found := false
	for _, ns := range namespaces {
		if ns == "settings" {
			found = true
		}
	}
	if !found {
		t.Errorf("ListNamespaces = %v, want it to include settings", namespaces)
	}

	if err := s.Clear(ctx, "settings"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	raw, err = s.Get(ctx, "user", "settings")
	if err != nil {
		t.Fatalf("Get after clear failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil after clear, got %s", raw)
	}
}

func testListKeys(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for _, k := range []string{"alpha", "beta", "gamma"} {
		if err := s.Set(ctx, k, k, "listing"); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}

	keys, err := s.ListKeys(ctx, "listing")
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("ListKeys returned %d keys, want 3: %v", len(keys), keys)
	}
	want := map[string]bool{"alpha": true, "beta": true, "gamma": true}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
}

func testInfo(t *testing.T, s storage.Store) {
	ctx := context.Background()

	// Info never errors; on failure it returns the zero struct.
	info := s.Info(ctx)
	if info.Used < 0 {
		t.Errorf("negative usage: %+v", info)
	}
}
