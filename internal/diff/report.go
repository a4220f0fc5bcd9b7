package diff

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/reloquent/pgpromote/internal/schema"
)

var rule = strings.Repeat("=", 80)

// Describe renders one object for a report line.
func Describe(d schema.Descriptor) string {
	switch o := d.(type) {
	case schema.Column:
		return fmt.Sprintf("%s (%s)", o.Key(), o.DataType)
	case schema.Constraint:
		return fmt.Sprintf("%s (%s)", o.Key(), o.Type)
	case schema.Extension:
		return fmt.Sprintf("%s (v%s)", o.Name, o.Version)
	case schema.Type:
		return fmt.Sprintf("%s (%s)", o.Key(), o.Category)
	case schema.Trigger:
		return fmt.Sprintf("%s (%s %s)", o.Key(), o.Timing, strings.Join(o.Events, " OR "))
	default:
		return d.Key()
	}
}

// Report renders the human-readable difference report. Kinds without
// differences are omitted.
func Report(d *DiffSet) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("SCHEMA DIFFERENCE REPORT\n")
	fmt.Fprintf(&b, "source: %s  destination: %s\n", d.SourceLabel, d.DestinationLabel)
	b.WriteString(rule + "\n")

	for _, k := range schema.Kinds {
		bucket := d.Bucket(k)
		if bucket.Total() == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", strings.ToUpper(k.String()), strings.Repeat("-", 40))

		if n := len(bucket.Added); n > 0 {
			fmt.Fprintf(&b, "  ADDED (%d):\n", n)
			for _, o := range bucket.Added {
				fmt.Fprintf(&b, "    + %s\n", Describe(o))
			}
		}
		if n := len(bucket.Removed); n > 0 {
			fmt.Fprintf(&b, "  REMOVED (%d):\n", n)
			for _, o := range bucket.Removed {
				fmt.Fprintf(&b, "    - %s\n", Describe(o))
			}
		}
		if n := len(bucket.Modified); n > 0 {
			fmt.Fprintf(&b, "  MODIFIED (%d):\n", n)
			for _, c := range bucket.Modified {
				fmt.Fprintf(&b, "    ~ %s [%s]\n", Describe(c.Source), strings.Join(c.Fields, ", "))
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\nTOTAL CHANGES: %d\n%s\n", rule, d.Totals().Sum(), rule)
	return b.String()
}

// SummaryTable renders per-kind counts as a grid.
func SummaryTable(d *DiffSet) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Added", "Removed", "Modified", "Total"})

	for _, k := range schema.Kinds {
		b := d.Bucket(k)
		t.AppendRow(table.Row{k.String(), len(b.Added), len(b.Removed), len(b.Modified), b.Total()})
	}

	tot := d.Totals()
	t.AppendFooter(table.Row{"total", tot.Added, tot.Removed, tot.Modified, tot.Sum()})
	return t.Render()
}
