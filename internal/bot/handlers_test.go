package bot

import (
	"testing"

	"evcharge/internal/models"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"508.5", 508.5, false},
		{"508,5", 508.5, false},
		{" 8.4 ", 8.4, false},
		{"12345", 12345, false},
		{"-5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseValue(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSlotLabel(t *testing.T) {
	tests := []struct {
		slot models.Slot
		want string
	}{
		{models.SlotBefore, "meter-before"},
		{models.SlotAfter, "meter-after"},
		{models.SlotDisplay, "station display"},
		{models.SlotExtra, "extra"},
	}
	for _, tt := range tests {
		if got := slotLabel(tt.slot); got != tt.want {
			t.Errorf("slotLabel(%s) = %q, want %q", tt.slot, got, tt.want)
		}
	}
}
