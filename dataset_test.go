package imgclass

import (
	"context"
	"path/filepath"
	"testing"
)

func TestGetImageNetData_DownloadAndLoad(t *testing.T) {
	t.Parallel()

	f := &fakeImageNet{wnid: "n02084071", synsetID: 5, prefixes: []string{"d_1", "d_2", "d_3"}}
	cfg := newFakeImageNet(t, f)
	root := t.TempDir()

	res, err := cfg.GetImageNetData(context.Background(), DatasetOptions{
		Download:     true,
		Classes:      []ClassSpec{{WNID: "n02084071", Name: "dog"}},
		Directory:    root,
		PerClass:     2,
		ImageSize:    4,
		Process:      true,
		Preprocessor: UnitScale,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Images) != 2 || res.Labels[0] != "dog" {
		t.Errorf("Labels = %v, want two dogs", res.Labels)
	}
	if !fileExists(filepath.Join(root, "dog", "d_1.jpg")) {
		t.Error("thumbnail not written under the class directory")
	}
	if res.Mapping.Len() != 1 || len(res.OneHot) != 2 {
		t.Errorf("Mapping = %v, OneHot = %v", res.Mapping.Names(), res.OneHot)
	}
}

func TestGetImageNetData_LocalOnly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeClassDir(t, root, "n02084071", map[string][]byte{"a.jpg": makeJPEG(8, 8)})

	// No server: Download is off so nothing is fetched, and the unnamed
	// class falls back to its WNID as directory name.
	cfg := &Config{BaseURL: "http://127.0.0.1:1"}
	res, err := cfg.GetImageNetData(context.Background(), DatasetOptions{
		Classes:   []ClassSpec{{WNID: "n02084071"}},
		Directory: root,
		ImageSize: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Images) != 1 || res.Labels[0] != "n02084071" {
		t.Errorf("Labels = %v", res.Labels)
	}
}

func TestGetImageNetData_ScrapeError(t *testing.T) {
	t.Parallel()

	cfg := newFakeImageNet(t, &fakeImageNet{wnid: "n02084071", synsetID: 5})
	_, err := cfg.GetImageNetData(context.Background(), DatasetOptions{
		Download:  true,
		Classes:   []ClassSpec{{WNID: "bogus", Name: "x"}},
		Directory: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for invalid wnid")
	}
}
