package imgclass

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := OpenManifest(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManifest_RecordLookup(t *testing.T) {
	t.Parallel()

	m := openTestManifest(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := ManifestEntry{
		URL: "http://x/a.thumb", WNID: "n02084071", SynsetID: 7, Path: "/tmp/a.jpg",
		Size: 123, Hash: "d:00ff", Artist: "Jane", Copyright: "CC", DownloadedAt: at,
	}
	if err := m.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok, err := m.Lookup(ctx, e.URL)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if !got.DownloadedAt.Equal(at) {
		t.Errorf("DownloadedAt = %v, want %v", got.DownloadedAt, at)
	}
	got.DownloadedAt = at
	if got != e {
		t.Errorf("Lookup = %+v, want %+v", got, e)
	}

	if _, ok, err := m.Lookup(ctx, "http://x/missing"); ok || err != nil {
		t.Errorf("Lookup(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestManifest_RecordReplaces(t *testing.T) {
	t.Parallel()

	m := openTestManifest(t)
	ctx := context.Background()

	_ = m.Record(ctx, ManifestEntry{URL: "u", WNID: "n1", Path: "/old"})
	if err := m.Record(ctx, ManifestEntry{URL: "u", WNID: "n1", Path: "/new"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, _, _ := m.Lookup(ctx, "u")
	if got.Path != "/new" {
		t.Errorf("Path = %q, want /new", got.Path)
	}
	if got.DownloadedAt.IsZero() {
		t.Error("DownloadedAt not defaulted")
	}
}

func TestManifest_EntriesAndStats(t *testing.T) {
	t.Parallel()

	m := openTestManifest(t)
	ctx := context.Background()

	for _, e := range []ManifestEntry{
		{URL: "u3", WNID: "n1", Path: "/c", Size: 30, Hash: "h1"},
		{URL: "u1", WNID: "n1", Path: "/a", Size: 10, Hash: "h1"},
		{URL: "u2", WNID: "n1", Path: "/b", Size: 20, Hash: ""},
		{URL: "u4", WNID: "n2", Path: "/d", Size: 5, Hash: "h2"},
	} {
		if err := m.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := m.Entries(ctx, "n1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 || entries[0].Path != "/a" || entries[2].Path != "/c" {
		t.Errorf("Entries = %+v, want /a /b /c", entries)
	}

	all, err := m.Entries(ctx, "")
	if err != nil || len(all) != 4 {
		t.Errorf("Entries(all) = %d, %v, want 4", len(all), err)
	}

	st, err := m.Stats(ctx, "n1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st != (ManifestStats{Total: 3, UniqueHashes: 1, Bytes: 60}) {
		t.Errorf("Stats = %+v, want 3 entries, 1 hash, 60 bytes", st)
	}

	st, _ = m.Stats(ctx, "")
	if st.Total != 4 || st.UniqueHashes != 2 {
		t.Errorf("Stats(all) = %+v", st)
	}

	empty, err := m.Stats(ctx, "n9")
	if err != nil || empty != (ManifestStats{}) {
		t.Errorf("Stats(unknown) = %+v, %v, want zero", empty, err)
	}
}
