package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	for _, level := range []int{0, 3} {
		t.Run(fmt.Sprintf("level-%d", level), func(t *testing.T) {
			fs, err := NewFileStore(t.TempDir(), level)
			if err != nil {
				t.Fatalf("NewFileStore failed: %v", err)
			}

			key := Hash("hello")
			w, err := fs.Create(key)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			chunks := [][]byte{bytes.Repeat([]byte{1, 2}, 2048), bytes.Repeat([]byte{0}, 4096), {7}}
			var want []byte
			for _, c := range chunks {
				if _, err := w.Write(c); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				want = append(want, c...)
			}

			path, size, err := w.Commit()
			if err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
			if path != fs.PathFor(key) {
				t.Errorf("Commit path = %s, want %s", path, fs.PathFor(key))
			}
			if size != int64(len(want)) {
				t.Errorf("Commit size = %d, want %d", size, len(want))
			}
			if level > 0 && !strings.HasSuffix(path, ".zst") {
				t.Errorf("Compressed path %s lacks .zst", path)
			}

			got, err := fs.ReadAll(path)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("ReadAll returned %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestFileStore_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 3)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	key := Hash("partial")
	w, err := fs.Create(key)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, _ = w.Write([]byte("some audio"))
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(fs.PathFor(key)))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Abort left %d files behind", len(entries))
	}
	if _, _, err := w.Commit(); err == nil {
		t.Error("Commit after Abort should fail")
	}
}

func TestFileStore_Remove(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	w, _ := fs.Create("abc")
	_, _ = w.Write([]byte("x"))
	path, _, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	removed, err := fs.Remove([]string{path, filepath.Join(fs.Dir(), "missing.pcm")})
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Remove = %d, want 1", removed)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File still exists after Remove: %v", err)
	}
}

func TestFileStore_InvalidInput(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), 23); err == nil {
		t.Error("NewFileStore accepted compression level 23")
	}

	fs, _ := NewFileStore(t.TempDir(), 0)
	for _, key := range []string{"", "../escape", `a\b`} {
		if _, err := fs.Create(key); err == nil {
			t.Errorf("Create(%q) should fail", key)
		}
	}
}
