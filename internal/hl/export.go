package hl

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FormatExport renders a collection of highlights into a human-readable
// Markdown document. It performs no I/O; the caller decides where the result
// goes. Output is byte-identical for the same inputs, apart from the export
// timestamp embedded in the header.
func FormatExport(rows []*HighlightWithResource, directoryLabel string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Highlights: %s\n\n", directoryLabel)
	fmt.Fprintf(&b, "Exported: %s\n", now.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Count: %d\n\n", len(rows))

	for _, row := range rows {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "## %s\n\n", filepath.Base(row.ResourcePath))
		fmt.Fprintf(&b, "Created: %s\n\n", row.CreatedAt.UTC().Format("2006-01-02 15:04"))
		for _, line := range strings.Split(row.Text, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
		if row.Notes != "" {
			fmt.Fprintf(&b, "**Notes:** %s\n\n", row.Notes)
		}
	}

	return b.String()
}

// exportFilename builds the deterministic output filename for an export,
// e.g. "highlights_notes_20240115T103000Z.md".
func exportFilename(directoryLabel string, now time.Time) string {
	label := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, directoryLabel)
	label = strings.Trim(label, "-")
	if label == "" {
		label = "all"
	}
	return fmt.Sprintf("highlights_%s_%s.md", label, now.UTC().Format("20060102T150405Z"))
}
