package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/reloquent/pgpromote/internal/schema"
)

func intp(n int) *int { return &n }

func TestCompareIdenticalSnapshots(t *testing.T) {
	s := &schema.Snapshot{
		Label:   "source",
		Tables:  []schema.Table{{Schema: "public", Name: "users"}},
		Columns: []schema.Column{{Schema: "public", Table: "users", Name: "id", DataType: "integer"}},
	}
	d, err := Compare(s, s)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if d.HasChanges() {
		t.Error("identical snapshots reported changes")
	}
	if d.Bucket(schema.Tables).Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", d.Bucket(schema.Tables).Unchanged)
	}
}

func TestCompareNewTableScenario(t *testing.T) {
	source := &schema.Snapshot{
		Label:  "source",
		Tables: []schema.Table{{Schema: "public", Name: "orders"}, {Schema: "public", Name: "users"}},
		Columns: []schema.Column{
			{Schema: "public", Table: "orders", Name: "id", DataType: "integer", Position: 1},
			{Schema: "public", Table: "orders", Name: "total", DataType: "numeric", Position: 2,
				NumericPrecision: intp(10), NumericScale: intp(2)},
			{Schema: "public", Table: "users", Name: "id", DataType: "integer", Position: 1},
		},
		Constraints: []schema.Constraint{
			{Schema: "public", Table: "orders", Name: "orders_pkey", Type: schema.PrimaryKey, Columns: []string{"id"}},
		},
	}
	destination := &schema.Snapshot{
		Label:   "destination",
		Tables:  []schema.Table{{Schema: "public", Name: "users"}},
		Columns: []schema.Column{{Schema: "public", Table: "users", Name: "id", DataType: "integer", Position: 1}},
	}

	d, err := Compare(source, destination)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}

	if got := keys(d.Bucket(schema.Tables).Added); strings.Join(got, ",") != "public.orders" {
		t.Errorf("tables added = %v", got)
	}
	if got := keys(d.Bucket(schema.Columns).Added); strings.Join(got, ",") != "public.orders.id,public.orders.total" {
		t.Errorf("columns added = %v", got)
	}
	if got := keys(d.Bucket(schema.Constraints).Added); strings.Join(got, ",") != "public.orders.orders_pkey" {
		t.Errorf("constraints added = %v", got)
	}
	tot := d.Totals()
	if tot.Removed != 0 || tot.Modified != 0 || tot.Added != 4 {
		t.Errorf("totals = %+v", tot)
	}
}

func TestCompareModifiedFunction(t *testing.T) {
	fn := schema.Function{Schema: "public", Name: "calc_tax", IdentityArgs: "amount numeric",
		Definition: "CREATE FUNCTION public.calc_tax(amount numeric) ... 0.16"}
	changed := fn
	changed.Definition = "CREATE FUNCTION public.calc_tax(amount numeric) ... 0.19"

	d, err := Compare(
		&schema.Snapshot{Label: "source", Functions: []schema.Function{changed}},
		&schema.Snapshot{Label: "destination", Functions: []schema.Function{fn}},
	)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}

	b := d.Bucket(schema.Functions)
	if len(b.Added) != 0 || len(b.Removed) != 0 || len(b.Modified) != 1 {
		t.Fatalf("bucket = %+v", b)
	}
	c := b.Modified[0]
	if c.Key() != "public.calc_tax(amount numeric)" || c.Fields[0] != "definition" {
		t.Errorf("change = %+v", c)
	}
	if c.Source.(schema.Function).Definition != changed.Definition {
		t.Error("change source should be the source snapshot's object")
	}
}

func TestCompareKeepsDottedNamesApart(t *testing.T) {
	source := &schema.Snapshot{Label: "source", Tables: []schema.Table{{Schema: "a", Name: "b.c"}}}
	destination := &schema.Snapshot{Label: "destination", Tables: []schema.Table{{Schema: "a.b", Name: "c"}}}

	d, err := Compare(source, destination)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	b := d.Bucket(schema.Tables)
	if len(b.Added) != 1 || len(b.Removed) != 1 || b.Unchanged != 0 {
		t.Errorf("added=%d removed=%d unchanged=%d", len(b.Added), len(b.Removed), b.Unchanged)
	}
	if !d.HasChanges() {
		t.Error("distinct dotted tables reported as unchanged")
	}
}

func TestComparePartitionsEveryKey(t *testing.T) {
	source := &schema.Snapshot{Indexes: []schema.Index{
		{Schema: "public", Table: "a", Name: "i1", Definition: "x"},
		{Schema: "public", Table: "a", Name: "i2", Definition: "y"},
		{Schema: "public", Table: "a", Name: "i3", Definition: "z"},
	}}
	destination := &schema.Snapshot{Indexes: []schema.Index{
		{Schema: "public", Table: "a", Name: "i2", Definition: "y"},
		{Schema: "public", Table: "a", Name: "i3", Definition: "changed"},
		{Schema: "public", Table: "a", Name: "i4", Definition: "w"},
	}}

	d, err := Compare(source, destination)
	if err != nil {
		t.Fatal(err)
	}
	b := d.Bucket(schema.Indexes)

	union := map[string]int{}
	for _, o := range b.Added {
		union[o.Key()]++
	}
	for _, o := range b.Removed {
		union[o.Key()]++
	}
	for _, c := range b.Modified {
		union[c.Key()]++
	}
	if len(union) != 3 || b.Unchanged != 1 {
		t.Errorf("partition = %v, unchanged %d", union, b.Unchanged)
	}
	for k, n := range union {
		if n != 1 {
			t.Errorf("key %s appears in %d buckets", k, n)
		}
	}
	if keys(b.Added)[0] != "public.i1" || keys(b.Removed)[0] != "public.i4" {
		t.Errorf("added %v removed %v", keys(b.Added), keys(b.Removed))
	}
}

func TestCompareRejectsInvalidInput(t *testing.T) {
	var ce *ComparisonError
	if _, err := Compare(nil, &schema.Snapshot{}); !errors.As(err, &ce) {
		t.Errorf("nil snapshot: error = %v", err)
	}

	dup := &schema.Snapshot{Label: "source", Views: []schema.View{{Schema: "public", Name: "v"}, {Schema: "public", Name: "v"}}}
	_, err := Compare(dup, &schema.Snapshot{})
	var dk *schema.DuplicateKeyError
	if !errors.As(err, &ce) || !errors.As(err, &dk) {
		t.Errorf("duplicate keys: error = %v", err)
	}
}

func TestReport(t *testing.T) {
	d, err := Compare(
		&schema.Snapshot{
			Label:      "source",
			Extensions: []schema.Extension{{Name: "pgcrypto", Version: "1.3"}},
			Columns:    []schema.Column{{Schema: "public", Table: "users", Name: "email", DataType: "text", Nullable: false}},
		},
		&schema.Snapshot{
			Label:   "destination",
			Columns: []schema.Column{{Schema: "public", Table: "users", Name: "email", DataType: "text", Nullable: true}},
			Views:   []schema.View{{Schema: "public", Name: "legacy"}},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	report := Report(d)
	for _, want := range []string{
		"SCHEMA DIFFERENCE REPORT",
		"EXTENSIONS:",
		"+ pgcrypto (v1.3)",
		"COLUMNS:",
		"~ public.users.email (text) [nullable]",
		"VIEWS:",
		"- public.legacy",
		"TOTAL CHANGES: 3",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "TABLES:") {
		t.Error("kinds without differences should be omitted")
	}
}

func TestSummaryTable(t *testing.T) {
	d, err := Compare(
		&schema.Snapshot{Tables: []schema.Table{{Schema: "public", Name: "orders"}}},
		&schema.Snapshot{},
	)
	if err != nil {
		t.Fatal(err)
	}
	out := SummaryTable(d)
	for _, want := range []string{"Kind", "tables", "views", "TOTAL"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("summary table missing %q:\n%s", want, out)
		}
	}
}

func keys(ds []schema.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Key()
	}
	return out
}
