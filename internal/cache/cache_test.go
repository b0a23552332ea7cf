package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestArtifactKey(t *testing.T) {
	mod := time.Unix(1700000000, 0)

	t.Run("stable", func(t *testing.T) {
		if ArtifactKey("a", "manifest.json", mod, 10) != ArtifactKey("a", "manifest.json", mod, 10) {
			t.Fatal("expected stable key")
		}
	})

	t.Run("rewrittenFile", func(t *testing.T) {
		k1 := ArtifactKey("a", "manifest.json", mod, 10)
		k2 := ArtifactKey("a", "manifest.json", mod.Add(time.Second), 10)
		k3 := ArtifactKey("a", "manifest.json", mod, 11)
		if k1 == k2 || k1 == k3 {
			t.Fatalf("expected distinct keys, got %q %q %q", k1, k2, k3)
		}
	})

	t.Run("datasetScoped", func(t *testing.T) {
		if ArtifactKey("a", "bounds.json", mod, 1) == ArtifactKey("b", "bounds.json", mod, 1) {
			t.Fatal("expected keys to differ across datasets")
		}
	})
}

func TestManager(t *testing.T) {
	m, err := NewManager(Config{ArtifactCacheSizeMB: 8, ArtifactTTL: time.Minute, MaxEntrySize: 1024, ListingCacheSize: 4})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetArtifact("missing"); ok {
		t.Fatal("expected miss")
	}
	if !m.SetArtifact("k", []byte("frame")) {
		t.Fatal("expected small artifact to be cached")
	}
	got, ok := m.GetArtifact("k")
	if !ok || !bytes.Equal(got, []byte("frame")) {
		t.Fatalf("GetArtifact = %q, %v", got, ok)
	}
	if m.SetArtifact("big", make([]byte, 2048)) {
		t.Fatal("expected oversized artifact to be skipped")
	}

	m.SetListing("datasets", []byte(`["a"]`))
	if _, ok := m.GetListing("datasets"); !ok {
		t.Fatal("expected listing hit")
	}
	m.InvalidateListings()
	if _, ok := m.GetListing("datasets"); ok {
		t.Fatal("expected listing to be purged")
	}
}
