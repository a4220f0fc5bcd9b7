// Package synth turns a schema difference into executable SQL: a forward
// script that brings the destination up to the source, and a rollback
// script that removes what the forward script adds.
package synth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/reloquent/pgpromote/internal/diff"
	"github.com/reloquent/pgpromote/internal/schema"
)

// Direction tells a forward script from a rollback script.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "rollback"
	}
	return "migration"
}

// Statement is one rendered object. Skipped statements carry a comment in
// place of SQL.
type Statement struct {
	Kind    schema.Kind
	Key     string
	SQL     string
	Skipped bool
}

// Section groups the statements of one kind.
type Section struct {
	Kind       schema.Kind
	Statements []Statement
}

// Note records an object that could not be synthesized.
type Note struct {
	Kind   schema.Kind
	Key    string
	Reason string
}

func (n Note) String() string {
	return fmt.Sprintf("%s %s: %s", n.Kind.Singular(), n.Key, n.Reason)
}

// Options tune the script envelope.
type Options struct {
	// ExpectedDatabase, when set, makes the script warn if it runs against
	// a database with another name.
	ExpectedDatabase string
	GeneratedAt      time.Time
}

// Script is a synthesized migration or rollback.
type Script struct {
	Direction        Direction
	SourceLabel      string
	DestinationLabel string
	Sections         []Section
	// Modified lists source/destination differences that are reported
	// for review and never applied.
	Modified []diff.Change
	Notes    []Note
	options  Options
}

// Len counts executable statements.
func (s *Script) Len() int {
	n := 0
	for _, sec := range s.Sections {
		for _, st := range sec.Statements {
			if !st.Skipped {
				n++
			}
		}
	}
	return n
}

// Empty reports whether the script carries nothing beyond its envelope.
func (s *Script) Empty() bool { return s.Len() == 0 }

// rollbackOrder removes dependents before the objects they depend on.
var rollbackOrder = []schema.Kind{
	schema.Views, schema.Triggers, schema.Functions, schema.Indexes,
	schema.Constraints, schema.Columns, schema.Tables, schema.Sequences,
	schema.Types, schema.Extensions,
}

// constraintRank orders constraints so referenced keys exist before the
// foreign keys that need them.
var constraintRank = map[string]int{
	schema.PrimaryKey: 0,
	schema.Unique:     1,
	schema.ForeignKey: 2,
	schema.Check:      3,
}

func orderConstraints(objs []schema.Descriptor, reverse bool) []schema.Descriptor {
	out := slices.Clone(objs)
	slices.SortStableFunc(out, func(a, b schema.Descriptor) int {
		ra, rb := constraintRank[a.(schema.Constraint).Type], constraintRank[b.(schema.Constraint).Type]
		if reverse {
			return rb - ra
		}
		return ra - rb
	})
	return out
}

// groupColumns keeps the columns of one table together, tables in the
// order they are first seen.
func groupColumns(objs []schema.Descriptor) []schema.Descriptor {
	var order []string
	byTable := make(map[string][]schema.Descriptor)
	for _, o := range objs {
		key := o.(schema.Column).TableKey()
		if _, seen := byTable[key]; !seen {
			order = append(order, key)
		}
		byTable[key] = append(byTable[key], o)
	}
	out := make([]schema.Descriptor, 0, len(objs))
	for _, key := range order {
		out = append(out, byTable[key]...)
	}
	return out
}

// Forward builds the script that creates every object present only in the
// source. Objects present only in the destination are never dropped, and
// modified objects are listed for review but not altered.
func Forward(d *diff.DiffSet, opts Options) *Script {
	s := newScript(Up, d, opts)
	for _, k := range schema.Kinds {
		b := d.Bucket(k)
		s.Modified = append(s.Modified, b.Modified...)

		added := b.Added
		switch k {
		case schema.Columns:
			added = groupColumns(added)
		case schema.Constraints:
			added = orderConstraints(added, false)
		}
		s.addSection(k, added, create)
	}
	return s
}

// Rollback builds the script that removes what Forward adds, in reverse
// dependency order. Extensions and types are left in place.
func Rollback(d *diff.DiffSet, opts Options) *Script {
	s := newScript(Down, d, opts)
	for _, k := range rollbackOrder {
		added := d.Bucket(k).Added
		switch k {
		case schema.Columns:
			added = groupColumns(added)
		case schema.Constraints:
			added = orderConstraints(added, true)
		}
		s.addSection(k, added, drop)
	}
	return s
}

func newScript(dir Direction, d *diff.DiffSet, opts Options) *Script {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	return &Script{
		Direction:        dir,
		SourceLabel:      d.SourceLabel,
		DestinationLabel: d.DestinationLabel,
		options:          opts,
	}
}

func (s *Script) addSection(k schema.Kind, objs []schema.Descriptor, render func(schema.Descriptor) (string, error)) {
	if len(objs) == 0 {
		return
	}
	sec := Section{Kind: k}
	for _, o := range objs {
		sec.Statements = append(sec.Statements, s.statement(o, render))
	}
	s.Sections = append(s.Sections, sec)
}

func (s *Script) statement(o schema.Descriptor, render func(schema.Descriptor) (string, error)) Statement {
	sql, err := render(o)
	if err == nil {
		return Statement{Kind: o.Kind(), Key: o.Key(), SQL: sql}
	}
	var g *gap
	if !errors.As(err, &g) {
		g = &gap{reason: err.Error()}
	}
	s.Notes = append(s.Notes, Note{Kind: o.Kind(), Key: o.Key(), Reason: g.reason})
	return Statement{Kind: o.Kind(), Key: o.Key(), SQL: comment("SKIP: " + g.reason), Skipped: true}
}

var (
	heavyRule = strings.Repeat("=", 78)
	lightRule = strings.Repeat("-", 78)
)

// String renders the script inside its transaction envelope.
func (s *Script) String() string {
	var b strings.Builder

	b.WriteString(comment(fmt.Sprintf("%s\npgpromote %s script\nsource: %s  destination: %s\ngenerated: %s\nstatements: %d\n%s",
		heavyRule, s.Direction, s.SourceLabel, s.DestinationLabel,
		s.options.GeneratedAt.Format(time.RFC3339), s.Len(), heavyRule)))
	b.WriteString("\n\nBEGIN;\n\n")

	if s.Direction == Up {
		b.WriteString(s.sanityCheck())
		b.WriteString("\n\n")
	}

	for _, sec := range s.Sections {
		b.WriteString(comment(fmt.Sprintf("%s\n%s\n%s", lightRule, strings.ToUpper(sec.Kind.String()), lightRule)))
		b.WriteString("\n\n")
		for _, st := range sec.Statements {
			b.WriteString(st.SQL)
			b.WriteString("\n\n")
		}
	}

	if len(s.Modified) > 0 {
		b.WriteString(s.modifiedBlock())
		b.WriteString("\n\n")
	}

	verb := "Migration"
	if s.Direction == Down {
		verb = "Rollback"
	}
	b.WriteString(doBlock(fmt.Sprintf("RAISE NOTICE '%s completed at %%', now();", verb)))
	b.WriteString("\n\nCOMMIT;\n")
	return b.String()
}

func (s *Script) sanityCheck() string {
	if s.options.ExpectedDatabase == "" {
		return doBlock("RAISE NOTICE 'Applying schema changes to database %', current_database();")
	}
	return doBlock(fmt.Sprintf(`IF current_database() <> %s THEN
    RAISE WARNING 'Expected database %%, connected to %%', %s, current_database();
ELSE
    RAISE NOTICE 'Applying schema changes to database %%', current_database();
END IF;`, QuoteLiteral(s.options.ExpectedDatabase), QuoteLiteral(s.options.ExpectedDatabase)))
}

func (s *Script) modifiedBlock() string {
	lines := []string{heavyRule, "MODIFIED OBJECTS (review manually, not applied)", heavyRule}
	for _, c := range s.Modified {
		lines = append(lines, fmt.Sprintf("  %s: %s [%s]", c.Source.Kind(), c.Key(), strings.Join(c.Fields, ", ")))
	}
	return comment(strings.Join(lines, "\n"))
}
