package storage

import (
	"strings"
	"testing"
)

func TestBuildUploadPath(t *testing.T) {
	key, err := BuildUploadPath("4f1c6a9e-5b1d-4c1e-9a53-3f1f2b9c0d11", "sales data.db")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	prefix := "uploads/4f1c6a9e-5b1d-4c1e-9a53-3f1f2b9c0d11/"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("key = %q, want prefix %q", key, prefix)
	}
	if !strings.HasSuffix(key, "-sales_data.db") {
		t.Fatalf("key = %q, want sanitized suffix", key)
	}

	other, err := BuildUploadPath("4f1c6a9e-5b1d-4c1e-9a53-3f1f2b9c0d11", "sales data.db")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	if other == key {
		t.Fatal("expected unique keys for repeated uploads")
	}
}

func TestBuildUploadPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildUploadPath("../oops", "a.db"); err == nil {
		t.Fatal("expected invalid session error")
	}
	if _, err := BuildUploadPath("s1", ".."); err == nil {
		t.Fatal("expected invalid file name error")
	}
}

func TestSessionUploadPrefixMatchesUploadKeys(t *testing.T) {
	prefix, err := SessionUploadPrefix("s1")
	if err != nil {
		t.Fatalf("SessionUploadPrefix() error = %v", err)
	}
	if prefix != "uploads/s1/" {
		t.Fatalf("prefix = %q", prefix)
	}
	key, err := BuildUploadPath("s1", "a.db")
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("key %q does not start with %q", key, prefix)
	}
	if _, err := SessionUploadPrefix("../s1"); err == nil {
		t.Fatal("expected invalid session error")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"/tmp/gradio/abc/chinook.sqlite": "chinook.sqlite",
		`C:\Users\me\my db.db`:           "my_db.db",
		"..hidden.db":                    "hidden.db",
		"":                               "",
	}
	for input, want := range cases {
		if got := SanitizeFileName(input); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", input, got, want)
		}
	}
}
