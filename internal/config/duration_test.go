package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "  ", want: 0},
		{raw: "3s", want: 3 * time.Second},
		{raw: "1m30s", want: 90 * time.Second},
		{raw: "250ms", want: 250 * time.Millisecond},
		{raw: "-1s", wantErr: true},
		{raw: "fast", wantErr: true},
		{raw: "10", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	def := 3 * time.Second

	got, err := ParseDurationOrDefault("f", "", def)
	if err != nil || got != def {
		t.Fatalf("empty must yield default: %v %v", got, err)
	}
	got, err = ParseDurationOrDefault("f", "5s", def)
	if err != nil || got != 5*time.Second {
		t.Fatalf("explicit value must win: %v %v", got, err)
	}
	if _, err := ParseDurationOrDefault("f", "junk", def); err == nil {
		t.Fatal("expected error for junk")
	}
}
