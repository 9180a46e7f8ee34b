package main

import (
	"bytes"
	"strings"
	"testing"

	"sdstack/config"
	"sdstack/core"
	"sdstack/internal/cardsim"
)

func newTestShell(t *testing.T, kind string) (*shell, *bytes.Buffer) {
	t.Helper()
	core.SetDebugWriter(func(string) {})
	board := config.DefaultBoard()
	st, err := newStack(board, stackOptions{kind: kind, sectors: 4096})
	if err != nil {
		t.Fatalf("newStack: %v", err)
	}
	if err := st.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	var out bytes.Buffer
	return newShell(st, &out), &out
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    cardsim.Kind
		wantErr bool
	}{
		{"sdhc", cardsim.SDHC, false},
		{"SDSC", cardsim.SDSCv2, false},
		{"sdsc1", cardsim.SDSCv1, false},
		{"mmc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShellWriteRead(t *testing.T) {
	sh, out := newTestShell(t, "sdhc")

	if _, err := sh.Run(`write 7 "hello card"`); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := string(sh.st.card.Sector(7)[:10]); got != "hello card" {
		t.Errorf("sector 7 = %q, want %q", got, "hello card")
	}

	out.Reset()
	if _, err := sh.Run("read 7"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out.String(), "sector 7:") || !strings.Contains(out.String(), "|hello card") {
		t.Errorf("read output missing dump:\n%s", out.String())
	}
}

func TestShellFill(t *testing.T) {
	for _, kind := range []string{"sdhc", "sdsc", "sdsc1"} {
		t.Run(kind, func(t *testing.T) {
			sh, _ := newTestShell(t, kind)
			if _, err := sh.Run("fill 3 2 0xA5"); err != nil {
				t.Fatalf("fill: %v", err)
			}
			for _, lba := range []uint32{3, 4} {
				for i, b := range sh.st.card.Sector(lba) {
					if b != 0xA5 {
						t.Fatalf("sector %d byte %d = %#x, want 0xa5", lba, i, b)
					}
				}
			}
		})
	}
}

func TestShellInfo(t *testing.T) {
	sh, out := newTestShell(t, "sdhc")
	if _, err := sh.Run("info"); err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"type:     SDHC", "capacity: 4096 sectors", "product:  SIM01", "made 2022-10"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("info output missing %q:\n%s", want, out.String())
		}
	}
}

func TestShellErrors(t *testing.T) {
	sh, _ := newTestShell(t, "sdhc")
	tests := []string{
		"bogus",
		"read",
		"read x",
		"read 4096",
		"write 1",
		"fill 0 1 300",
		`write 0 "unterminated`,
		"read 0 4294967295",
		"read 4095 2",
		"read 0 0",
		"fill 1 4294967295 0",
		"fill 4096 1 0",
	}
	for _, line := range tests {
		if _, err := sh.Run(line); err == nil {
			t.Errorf("Run(%q) succeeded, want error", line)
		}
	}
}

func TestShellQuit(t *testing.T) {
	sh, _ := newTestShell(t, "sdhc")
	for _, line := range []string{"", "help", "clear", "trace"} {
		quit, err := sh.Run(line)
		if err != nil || quit {
			t.Errorf("Run(%q) = %v, %v; want false, nil", line, quit, err)
		}
	}
	for _, line := range []string{"quit", "exit", "q"} {
		if quit, _ := sh.Run(line); !quit {
			t.Errorf("Run(%q) did not quit", line)
		}
	}
}
