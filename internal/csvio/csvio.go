// Package csvio maps device records to and from the flat CSV shape used
// for import and export. Import accepts a name column; export emits the
// full record.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mproctor/adsweep/internal/device"
)

// importColumns are the accepted name headers, in preference order. The
// first one present in the file wins.
var importColumns = []string{"ComputerName", "Name"}

// exportHeader is the column layout of an export.
var exportHeader = []string{
	"ComputerName", "Enabled", "LastLogonDate", "InactiveDays",
	"OUPath", "DistinguishedName", "Source",
}

// ReadNames extracts computer names from a CSV stream. The header row must
// contain a ComputerName or Name column (matched case-insensitively;
// ComputerName preferred when both are present). Blank cells are skipped.
// Deduplication is left to ResultSet.LoadImported.
func ReadNames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows tolerated
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty import file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading import header: %w", err)
	}

	col := -1
	for _, want := range importColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				col = i
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("import file has no %s column", strings.Join(importColumns, " or "))
	}

	var names []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading import row: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if name := strings.TrimSpace(row[col]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// WriteRecords emits the records as CSV with the standard export columns.
func WriteRecords(w io.Writer, records []device.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return fmt.Errorf("writing export row for %q: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(r device.Record) []string {
	enabled := "Unknown"
	if r.Enabled != nil {
		if *r.Enabled {
			enabled = "True"
		} else {
			enabled = "False"
		}
	}

	lastLogon := ""
	if r.LastActivity != nil {
		lastLogon = r.LastActivity.UTC().Format(time.RFC3339)
	}

	inactive := "N/A"
	if r.InactiveDays != nil {
		inactive = strconv.Itoa(*r.InactiveDays)
	}

	return []string{
		r.Name, enabled, lastLogon, inactive,
		r.FriendlyScope, r.UniquePath, string(r.Origin),
	}
}
