package phototime

import (
	"testing"
	"time"

	"evcharge/internal/models"
)

func TestParseMetadataTimestamp(t *testing.T) {
	ts, ok := ParseMetadataTimestamp("2026:08:15 17:45:07")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	want := time.Date(2026, 8, 15, 17, 45, 7, 0, time.Local)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts, want)
	}

	for _, raw := range []string{"", "2026-08-15 17:45:07", "not a date"} {
		if _, ok := ParseMetadataTimestamp(raw); ok {
			t.Errorf("ParseMetadataTimestamp(%q) unexpectedly succeeded", raw)
		}
	}
}

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name string
		file string
		want time.Time
		ok   bool
	}{
		{
			name: "phone camera export",
			file: "IMG_20260815_174507.jpg",
			want: time.Date(2026, 8, 15, 17, 45, 7, 0, time.Local),
			ok:   true,
		},
		{
			name: "bare token",
			file: "20260815_174507.jpg",
			want: time.Date(2026, 8, 15, 17, 45, 7, 0, time.Local),
			ok:   true,
		},
		{
			name: "no token",
			file: "photo.jpg",
		},
		{
			name: "impossible date",
			file: "20261345_990000.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := FromFilename(tt.file)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !ts.Equal(tt.want) {
				t.Errorf("got %v, want %v", ts, tt.want)
			}
		})
	}
}

func TestExtractFallsBackToFilename(t *testing.T) {
	// No EXIF in an empty body; the filename token still works.
	result := Extract(nil, "IMG_20260815_174507.jpg")
	if !result.OK {
		t.Fatal("expected filename fallback to succeed")
	}
	if result.Source != models.SourceFilename {
		t.Errorf("source = %s, want filename", result.Source)
	}

	result = Extract([]byte("not a jpeg"), "photo.jpg")
	if result.OK {
		t.Fatalf("expected no timestamp, got %+v", result)
	}
	if result.Source != models.SourceNone {
		t.Errorf("source = %s, want none", result.Source)
	}
}
