package store

import (
	"io"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *FileStore {
	t.Helper()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	return fs
}

func TestStoreRoundTrip(t *testing.T) {
	fs := openTestStore(t)

	if err := fs.Store("report.md", strings.NewReader("# Findings\n")); err != nil {
		t.Fatal(err)
	}

	ok, err := fs.Contains("report.md")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("stored file not found")
	}

	r, err := fs.Get("report.md")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}

	if string(content) != "# Findings\n" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestStoreReplace(t *testing.T) {
	fs := openTestStore(t)

	if err := fs.Store("report.md", strings.NewReader("v1")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Store("report.md", strings.NewReader("v2")); err != nil {
		t.Fatal(err)
	}

	r, err := fs.Get("report.md")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	content, _ := io.ReadAll(r)
	if string(content) != "v2" {
		t.Errorf("unexpected content after replace: %q", content)
	}
}

func TestList(t *testing.T) {
	fs := openTestStore(t)

	files, err := fs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty store, got %v", files)
	}

	for _, name := range []string{"a.md", "b.md"} {
		if err := fs.Store(name, strings.NewReader(name)); err != nil {
			t.Fatal(err)
		}
	}

	files, err = fs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files, got %v", files)
	}
}

func TestContainsMissing(t *testing.T) {
	fs := openTestStore(t)

	ok, err := fs.Contains("nope.md")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Contains reported a missing file as present")
	}
}
