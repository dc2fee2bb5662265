package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMoveFileCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	src := writeSource(t, root, "doc.pdf", "payload")
	dst := filepath.Join(root, "a", "b", "doc.pdf")

	if err := moveFile(src, dst); err != nil {
		t.Fatalf("moveFile: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Errorf("destination content = %q (err %v)", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists after move")
	}
}

func TestCopyThenDeletePreservesContent(t *testing.T) {
	root := t.TempDir()
	src := writeSource(t, root, "doc.pdf", "exact bytes")
	dst := filepath.Join(root, "nested", "doc.pdf")

	if err := copyThenDelete(src, dst); err != nil {
		t.Fatalf("copyThenDelete: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "exact bytes" {
		t.Errorf("destination content = %q (err %v)", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists after copy-then-delete")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected leftovers in destination dir: %v", entries)
	}
}

func TestUniqueDestAvoidsOverwrite(t *testing.T) {
	root := t.TempDir()
	existing := writeSource(t, root, "doc.pdf", "old")

	got := uniqueDest(existing)
	if got == existing {
		t.Fatal("uniqueDest returned an occupied path")
	}
	if filepath.Ext(got) != ".pdf" {
		t.Errorf("extension lost: %q", got)
	}

	free := filepath.Join(root, "other.pdf")
	if got := uniqueDest(free); got != free {
		t.Errorf("uniqueDest(%q) = %q, want unchanged", free, got)
	}
}

func TestHashFileStable(t *testing.T) {
	root := t.TempDir()
	a := writeSource(t, root, "a.pdf", "same bytes")
	b := writeSource(t, root, "b.pdf", "same bytes")

	ha, err := hashFile(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := hashFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("hashes differ for identical content: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(ha))
	}
}
