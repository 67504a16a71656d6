// downloader_test.go — Unit tests for download bookkeeping: ceilings,
// output location, mime mapping, and the stale-file sweep.
package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDownloader(t *testing.T) *Downloader {
	t.Helper()
	return NewDownloader("yt-dlp", t.TempDir(),
		[]string{"web", "android"},
		[]string{"worstaudio[ext=m4a]/worstaudio", "worst"})
}

func TestDownloadRejectsLongVideo(t *testing.T) {
	d := newTestDownloader(t)
	info := &Info{ID: "dQw4w9WgXcQ", DurationSeconds: 4000, Persona: "web"}

	_, err := d.Download(context.Background(), "dQw4w9WgXcQ", info)
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("Download() error = %v, want ErrTooLong", err)
	}
}

func TestDownloadRejectsBadVideoID(t *testing.T) {
	d := newTestDownloader(t)
	info := &Info{DurationSeconds: 60}

	for _, id := range []string{"", "short", "dQw4w9WgXc;"} {
		if _, err := d.Download(context.Background(), id, info); err == nil {
			t.Errorf("Download(%q) expected error", id)
		}
	}
}

func TestFetchInfoRejectsBadVideoID(t *testing.T) {
	d := newTestDownloader(t)
	if _, err := d.FetchInfo(context.Background(), "$(rm -rf /)"); err == nil {
		t.Error("FetchInfo() expected error for unsafe input")
	}
}

func TestPersonaArgs(t *testing.T) {
	if got := personaArgs("web"); got != nil {
		t.Errorf("personaArgs(web) = %v, want nil", got)
	}
	if got := personaArgs(""); got != nil {
		t.Errorf("personaArgs(empty) = %v, want nil", got)
	}
	got := personaArgs("android")
	if len(got) != 2 || got[0] != "--extractor-args" || got[1] != "youtube:player_client=android" {
		t.Errorf("personaArgs(android) = %v", got)
	}
}

func TestLocateDownload(t *testing.T) {
	d := newTestDownloader(t)

	base := "dQw4w9WgXcQ_1700000000000"
	path := filepath.Join(d.tempDir, base+".m4a")
	if err := os.WriteFile(path, []byte("audio bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	file, err := d.locateDownload(base)
	if err != nil {
		t.Fatalf("locateDownload() error: %v", err)
	}
	if file.MimeType != "audio/mp4" {
		t.Errorf("MimeType = %q, want audio/mp4", file.MimeType)
	}
	if file.SizeBytes != int64(len("audio bytes")) {
		t.Errorf("SizeBytes = %d", file.SizeBytes)
	}
}

func TestLocateDownloadMissing(t *testing.T) {
	d := newTestDownloader(t)
	if _, err := d.locateDownload("dQw4w9WgXcQ_123"); err == nil {
		t.Error("locateDownload() expected error for missing file")
	}
}

func TestLocateDownloadUnknownExtension(t *testing.T) {
	d := newTestDownloader(t)
	base := "dQw4w9WgXcQ_42"
	if err := os.WriteFile(filepath.Join(d.tempDir, base+".bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	file, err := d.locateDownload(base)
	if err != nil {
		t.Fatalf("locateDownload() error: %v", err)
	}
	if file.MimeType != "application/octet-stream" {
		t.Errorf("MimeType = %q, want application/octet-stream", file.MimeType)
	}
}

func TestSweepStale(t *testing.T) {
	d := newTestDownloader(t)

	old := filepath.Join(d.tempDir, "dQw4w9WgXcQ_1.m4a")
	fresh := filepath.Join(d.tempDir, "dQw4w9WgXcQ_2.mp4")
	vtt := filepath.Join(d.tempDir, "cap-dQw4w9WgXcQ.en.vtt")
	unrelated := filepath.Join(d.tempDir, "keep.txt")
	for _, p := range []string{old, fresh, vtt, unrelated} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	stale := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{old, vtt, unrelated} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	if removed := d.SweepStale(); removed != 2 {
		t.Errorf("SweepStale() removed %d, want 2", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale media file should be removed")
	}
	if _, err := os.Stat(vtt); !os.IsNotExist(err) {
		t.Error("stale subtitle file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should survive the sweep")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated file should never be touched")
	}
}
