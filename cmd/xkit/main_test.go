package main

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func TestParseWindowID(t *testing.T) {
	tests := []struct {
		in      string
		want    xproto.Window
		wantErr bool
	}{
		{in: "0x00400001", want: 0x400001},
		{in: "0X2A", want: 42},
		{in: "4194305", want: 4194305},
		{in: "0", wantErr: true},
		{in: "", wantErr: true},
		{in: "root", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "0x1ffffffff", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWindowID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseWindowID(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseWindowID(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseWindowID(%q) = 0x%x, want 0x%x", tt.in, uint32(got), uint32(tt.want))
		}
	}
}

func TestKeysymLabel(t *testing.T) {
	if got := keysymLabel(0); got != "-" {
		t.Errorf("empty slot label = %q, want -", got)
	}
	if got := keysymLabel(0x0068); got != "h" {
		t.Errorf("keysymLabel(0x68) = %q, want h", got)
	}
	if got := keysymLabel(0xff0d); got != "Return" {
		t.Errorf("keysymLabel(0xff0d) = %q, want Return", got)
	}
}
