// Package phototime recovers a capture time for a photo, preferring embedded
// EXIF metadata and falling back to a timestamp token in the filename.
package phototime

import (
	"bytes"
	"regexp"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"evcharge/internal/models"
)

// Result is the outcome of a timestamp extraction attempt.
type Result struct {
	Timestamp time.Time
	Source    models.TimestampSource
	OK        bool
}

// exifTimeLayout is the raw EXIF representation, "2025:08:06 17:45:07".
const exifTimeLayout = "2006:01:02 15:04:05"

var filenamePattern = regexp.MustCompile(`(\d{8}_\d{6})`)

// Extract attempts EXIF metadata first, then the filename. Pure function of
// its inputs; callers fall back to state-based classification on !OK.
func Extract(image []byte, filename string) Result {
	if ts, ok := fromMetadata(image); ok {
		return Result{Timestamp: ts, Source: models.SourceMetadata, OK: true}
	}
	if ts, ok := FromFilename(filename); ok {
		return Result{Timestamp: ts, Source: models.SourceFilename, OK: true}
	}
	return Result{Source: models.SourceNone}
}

func fromMetadata(image []byte) (time.Time, bool) {
	if len(image) == 0 {
		return time.Time{}, false
	}
	x, err := exif.Decode(bytes.NewReader(image))
	if err != nil {
		return time.Time{}, false
	}
	// DateTimeOriginal is the shutter time; DateTime is a modification time
	// and only trusted when nothing better exists.
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		if ts, ok := ParseMetadataTimestamp(raw); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseMetadataTimestamp normalizes an EXIF-style "YYYY:MM:DD HH:MM:SS" value.
func ParseMetadataTimestamp(raw string) (time.Time, bool) {
	ts, err := time.ParseInLocation(exifTimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// FromFilename matches a YYYYMMDD_HHMMSS token, the naming scheme most phone
// cameras use for exported files.
func FromFilename(filename string) (time.Time, bool) {
	m := filenamePattern.FindString(filename)
	if m == "" {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102_150405", m, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
