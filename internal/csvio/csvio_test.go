package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mproctor/adsweep/internal/device"
)

func TestReadNames_ComputerNameColumnWins(t *testing.T) {
	// Both columns present: ComputerName is authoritative, Name ignored.
	input := "ComputerName,Name\nPC-001,PC-002\n"
	names, err := ReadNames(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadNames: %v", err)
	}
	if len(names) != 1 || names[0] != "PC-001" {
		t.Fatalf("names = %v, want [PC-001]", names)
	}
}

func TestReadNames_NameColumnFallback(t *testing.T) {
	input := "Site,Name\nHQ,PC-010\nHQ,PC-011\n"
	names, err := ReadNames(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadNames: %v", err)
	}
	if len(names) != 2 || names[0] != "PC-010" || names[1] != "PC-011" {
		t.Fatalf("names = %v", names)
	}
}

func TestReadNames_SkipsBlankCells(t *testing.T) {
	input := "ComputerName\nPC-001\n\nPC-002\n   \n"
	names, err := ReadNames(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadNames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}
}

func TestReadNames_HeaderMatchIsCaseInsensitive(t *testing.T) {
	names, err := ReadNames(strings.NewReader("computername\npc-001\n"))
	if err != nil {
		t.Fatalf("ReadNames: %v", err)
	}
	if len(names) != 1 || names[0] != "pc-001" {
		t.Fatalf("names = %v", names)
	}
}

func TestReadNames_Errors(t *testing.T) {
	if _, err := ReadNames(strings.NewReader("")); err == nil {
		t.Error("empty file should error")
	}
	if _, err := ReadNames(strings.NewReader("Hostname\nPC-001\n")); err == nil {
		t.Error("file without a recognized name column should error")
	}
}

func TestWriteRecords(t *testing.T) {
	enabled := false
	last := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := 366
	records := []device.Record{
		{
			Name:          "PC-001",
			UniquePath:    "CN=PC-001,OU=IT,OU=Faculty,DC=example,DC=com",
			Enabled:       &enabled,
			LastActivity:  &last,
			InactiveDays:  &days,
			FriendlyScope: "Faculty / IT",
			Origin:        device.OriginScanned,
		},
		{
			Name:   "PC-002",
			Origin: device.OriginImported,
		},
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "ComputerName,Enabled,LastLogonDate,InactiveDays,OUPath,DistinguishedName,Source" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "PC-001,False,2024-01-01T00:00:00Z,366,Faculty / IT") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "PC-002,Unknown,,N/A,,,imported") {
		t.Errorf("row 2 = %q", lines[2])
	}
}
