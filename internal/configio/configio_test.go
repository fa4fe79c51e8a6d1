package configio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"yaml", "agent:\n  name: test\n  tools: [a, b]\n"},
		{"no trailing newline", "key: value"},
		{"crlf", "a: 1\r\nb: 2\r\n"},
		{"unicode", "name: \"日本語 ✓\"\n"},
		{"nul bytes", "a\x00b"},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "agent.yaml")
			if err := Write(path, tt.content); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != tt.content {
				t.Errorf("Read = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestWrite_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := Write(path, "a much longer first version\n"); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, "short\n"); err != nil {
		t.Fatal(err)
	}
	if got, _ := Read(path); got != "short\n" {
		t.Errorf("Read = %q", got)
	}
}

func TestWrite_Mode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := Write(path, "x"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// umask may clear bits but never adds them.
	if info.Mode().Perm()&^FileMode != 0 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestWrite_MissingDirectory(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "no", "such", "dir.yaml"), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("err = %T, want *fs.PathError", err)
	}
}
