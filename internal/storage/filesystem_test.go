package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeKey(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "generated/a.png", want: "generated/a.png"},
		{in: "/generated//a.png", want: "generated/a.png"},
		{in: "./a.png", want: "a.png"},
		{in: `dir\a.png`, want: "dir/a.png"},
		{in: "generated/../a.png", want: "a.png"},
		{in: "../escape.png", wantErr: true},
		{in: "..", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestFileStoreWriteAndServe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://assets.local/assets/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Write(context.Background(), "generated/job-1.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := store.URL(key); got != "http://assets.local/assets/generated/job-1.png" {
		t.Fatalf("URL = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "generated", "job-1.png.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}

	srv := httptest.NewServer(http.StripPrefix("/assets", store.Handler()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/assets/generated/job-1.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("served %d %q", resp.StatusCode, body)
	}
}

func TestFileStoreWriteHonoursContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "a.png", nil); err == nil {
		t.Fatalf("expected context error")
	}
}
