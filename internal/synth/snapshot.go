package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/reloquent/pgpromote/internal/schema"
)

// RenderSnapshot writes a snapshot as plain DDL for people to read. The
// output is not meant to be executed.
func RenderSnapshot(s *schema.Snapshot) string {
	var b strings.Builder
	b.WriteString(comment(fmt.Sprintf("%s\nschema snapshot: %s (%s)\ncaptured: %s\n%s\n%s",
		heavyRule, s.Label, s.Database, s.CapturedAt.Format(time.RFC3339), s.Summary(), heavyRule)))
	b.WriteString("\n")

	section := func(k schema.Kind, stmts []string) {
		if len(stmts) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s\n\n", comment(strings.ToUpper(k.String())))
		for _, st := range stmts {
			b.WriteString(st)
			b.WriteString("\n\n")
		}
	}

	section(schema.Extensions, renderAll(s.Extensions, createExtension))
	section(schema.Types, renderAll(s.Types, typeDDL))
	section(schema.Sequences, renderAll(s.Sequences, createSequence))
	section(schema.Tables, tableDDL(s))
	section(schema.Constraints, renderAll(s.Constraints, constraintStatement))
	section(schema.Indexes, renderAll(s.Indexes, func(i schema.Index) (string, error) {
		return ensureSemicolon(i.Definition), nil
	}))
	section(schema.Functions, renderAll(s.Functions, createFunction))
	section(schema.Triggers, renderAll(s.Triggers, triggerStatement))
	section(schema.Views, renderAll(s.Views, createView))
	return b.String()
}

func renderAll[T schema.Descriptor](items []T, render func(T) (string, error)) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		sql, err := render(item)
		if err != nil {
			sql = comment(err.Error())
		}
		out = append(out, sql)
	}
	return out
}

func typeDDL(t schema.Type) (string, error) {
	switch t.Category {
	case schema.TypeEnum:
		return enumStatement(t)
	case schema.TypeDomain:
		return fmt.Sprintf("CREATE DOMAIN %s AS %s;", QualifiedName(t.Schema, t.Name), t.Definition), nil
	}
	return "", skip("composite type %s", t.Key())
}

// tableDDL renders each table with its columns inline.
func tableDDL(s *schema.Snapshot) []string {
	byTable := make(map[string][]string, len(s.Tables))
	for _, c := range s.Columns {
		byTable[c.TableKey()] = append(byTable[c.TableKey()], "    "+columnSpec(c))
	}
	out := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		cols := byTable[t.Key()]
		if len(cols) == 0 {
			out = append(out, fmt.Sprintf("CREATE TABLE %s ();", QualifiedName(t.Schema, t.Name)))
			continue
		}
		out = append(out, fmt.Sprintf("CREATE TABLE %s (\n%s\n);", QualifiedName(t.Schema, t.Name), strings.Join(cols, ",\n")))
	}
	return out
}
