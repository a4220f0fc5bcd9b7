package synth

import (
	"fmt"
	"strings"

	"github.com/reloquent/pgpromote/internal/schema"
)

// gap is returned by a renderer that cannot produce a statement for an
// object. The object is written as a comment and reported as a Note.
type gap struct{ reason string }

func (g *gap) Error() string { return g.reason }

func skip(format string, args ...any) error {
	return &gap{reason: fmt.Sprintf(format, args...)}
}

// arrayElementNames maps internal element type names to their SQL spelling.
var arrayElementNames = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"float4":      "real",
	"float8":      "double precision",
	"bool":        "boolean",
	"varchar":     "character varying",
	"bpchar":      "character",
	"timestamptz": "timestamp with time zone",
	"timestamp":   "timestamp without time zone",
	"timetz":      "time with time zone",
	"time":        "time without time zone",
}

var (
	lengthTypes   = []string{"character varying", "character", "varchar", "char", "bit", "bit varying"}
	decimalTypes  = []string{"numeric", "decimal"}
	temporalTypes = []string{"timestamp", "time", "interval"}
)

// ColumnType renders the column's type with its modifiers.
func ColumnType(c schema.Column) string {
	dt := strings.ToLower(c.DataType)
	switch {
	case dt == "user-defined":
		return udtName(c.UDTSchema, c.UDTName)
	case dt == "array":
		elem := strings.TrimPrefix(c.UDTName, "_")
		if name, ok := arrayElementNames[elem]; ok {
			return name + "[]"
		}
		return udtName(c.UDTSchema, elem) + "[]"
	case contains(lengthTypes, dt):
		if c.CharMaxLength != nil {
			return fmt.Sprintf("%s(%d)", c.DataType, *c.CharMaxLength)
		}
	case contains(decimalTypes, dt):
		if c.NumericPrecision != nil {
			if c.NumericScale != nil {
				return fmt.Sprintf("%s(%d,%d)", c.DataType, *c.NumericPrecision, *c.NumericScale)
			}
			return fmt.Sprintf("%s(%d)", c.DataType, *c.NumericPrecision)
		}
	default:
		head, rest, _ := strings.Cut(c.DataType, " ")
		if contains(temporalTypes, strings.ToLower(head)) && c.DatetimePrecision != nil && *c.DatetimePrecision != 6 {
			out := fmt.Sprintf("%s(%d)", head, *c.DatetimePrecision)
			if rest != "" {
				out += " " + rest
			}
			return out
		}
	}
	return c.DataType
}

func udtName(schemaName, name string) string {
	if schemaName == "" || schemaName == "pg_catalog" {
		return QuoteIdent(name)
	}
	return QualifiedName(schemaName, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// columnSpec renders "name type [DEFAULT x] [NOT NULL]".
func columnSpec(c schema.Column) string {
	spec := QuoteIdent(c.Name) + " " + ColumnType(c)
	if c.Default != "" {
		spec += " DEFAULT " + c.Default
	}
	if !c.Nullable {
		spec += " NOT NULL"
	}
	return spec
}

func createExtension(e schema.Extension) (string, error) {
	stmt := "CREATE EXTENSION IF NOT EXISTS " + QuoteIdent(e.Name)
	if e.Schema != "" {
		stmt += " WITH SCHEMA " + QuoteIdent(e.Schema)
	}
	return stmt + ";", nil
}

func enumStatement(t schema.Type) (string, error) {
	if t.Category != schema.TypeEnum || len(t.Labels) == 0 {
		return "", skip("%s type %s requires manual definition", t.Category, t.Key())
	}
	labels := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		labels[i] = QuoteLiteral(l)
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", QualifiedName(t.Schema, t.Name), strings.Join(labels, ", ")), nil
}

func createType(t schema.Type) (string, error) {
	stmt, err := enumStatement(t)
	if err != nil {
		return "", err
	}
	exists := fmt.Sprintf("SELECT 1 FROM pg_type t JOIN pg_namespace n ON n.oid = t.typnamespace WHERE n.nspname = %s AND t.typname = %s",
		QuoteLiteral(t.Schema), QuoteLiteral(t.Name))
	return guarded(exists, stmt), nil
}

var sequenceTypes = []string{"smallint", "integer", "bigint"}

func createSequence(s schema.Sequence) (string, error) {
	parts := []string{"CREATE SEQUENCE IF NOT EXISTS " + QualifiedName(s.Schema, s.Name)}
	if contains(sequenceTypes, strings.ToLower(s.DataType)) {
		parts = append(parts, "AS "+strings.ToLower(s.DataType))
	}
	if s.Increment != "" {
		parts = append(parts, "INCREMENT BY "+s.Increment)
	}
	if s.MinimumValue != "" {
		parts = append(parts, "MINVALUE "+s.MinimumValue)
	}
	if s.MaximumValue != "" {
		parts = append(parts, "MAXVALUE "+s.MaximumValue)
	}
	if s.StartValue != "" {
		parts = append(parts, "START WITH "+s.StartValue)
	}
	if s.Cycle {
		parts = append(parts, "CYCLE")
	} else {
		parts = append(parts, "NO CYCLE")
	}
	return strings.Join(parts, " ") + ";", nil
}

func createTable(t schema.Table) (string, error) {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ();", QualifiedName(t.Schema, t.Name))
	if t.RowSecurity {
		stmt += fmt.Sprintf("\nALTER TABLE %s ENABLE ROW LEVEL SECURITY;", QualifiedName(t.Schema, t.Name))
	}
	return stmt, nil
}

func addColumn(c schema.Column) (string, error) {
	if c.DataType == "" {
		return "", skip("column %s has no data type", c.Key())
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;", QualifiedName(c.Schema, c.Table), columnSpec(c)), nil
}

// constraintBody renders the part after ADD CONSTRAINT name.
func constraintBody(c schema.Constraint) (string, error) {
	switch c.Type {
	case schema.PrimaryKey, schema.Unique:
		if len(c.Columns) == 0 {
			return "", skip("%s constraint %s has no columns", strings.ToLower(c.Type), c.Key())
		}
		return fmt.Sprintf("%s (%s)", c.Type, identList(c.Columns)), nil
	case schema.ForeignKey:
		if len(c.Columns) == 0 || c.ForeignTable == "" || len(c.ForeignColumns) == 0 {
			return "", skip("foreign key %s has an incomplete reference", c.Key())
		}
		body := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			identList(c.Columns), QualifiedName(c.ForeignSchema, c.ForeignTable), identList(c.ForeignColumns))
		if r := strings.ToUpper(c.DeleteRule); r != "" && r != "NO ACTION" {
			body += " ON DELETE " + r
		}
		if r := strings.ToUpper(c.UpdateRule); r != "" && r != "NO ACTION" {
			body += " ON UPDATE " + r
		}
		return body, nil
	case schema.Check:
		clause := strings.TrimSpace(c.CheckClause)
		if clause == "" {
			return "", skip("check constraint %s has no clause", c.Key())
		}
		if !strings.HasPrefix(clause, "(") {
			clause = "(" + clause + ")"
		}
		return "CHECK " + clause, nil
	}
	return "", skip("constraint %s has unsupported type %q", c.Key(), c.Type)
}

func constraintStatement(c schema.Constraint) (string, error) {
	body, err := constraintBody(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s;", QualifiedName(c.Schema, c.Table), QuoteIdent(c.Name), body), nil
}

func addConstraint(c schema.Constraint) (string, error) {
	stmt, err := constraintStatement(c)
	if err != nil {
		return "", err
	}
	exists := fmt.Sprintf("SELECT 1 FROM information_schema.table_constraints WHERE table_schema = %s AND table_name = %s AND constraint_name = %s",
		QuoteLiteral(c.Schema), QuoteLiteral(c.Table), QuoteLiteral(c.Name))
	return guarded(exists, stmt), nil
}

func createIndex(i schema.Index) (string, error) {
	if strings.TrimSpace(i.Definition) == "" {
		return "", skip("index %s has no definition", i.Key())
	}
	exists := fmt.Sprintf("SELECT 1 FROM pg_indexes WHERE schemaname = %s AND indexname = %s",
		QuoteLiteral(i.Schema), QuoteLiteral(i.Name))
	return guarded(exists, i.Definition), nil
}

func createFunction(f schema.Function) (string, error) {
	def := strings.TrimSpace(f.Definition)
	if def == "" {
		return "", skip("function %s has no definition", f.Key())
	}
	for _, prefix := range []string{"CREATE FUNCTION", "CREATE PROCEDURE"} {
		if len(def) >= len(prefix) && strings.EqualFold(def[:len(prefix)], prefix) {
			def = "CREATE OR REPLACE " + def[len("CREATE "):]
			break
		}
	}
	return ensureSemicolon(def), nil
}

func triggerStatement(t schema.Trigger) (string, error) {
	if t.Timing == "" || len(t.Events) == 0 || t.ActionStatement == "" {
		return "", skip("trigger %s is missing its timing, events or action", t.Key())
	}
	orientation := t.Orientation
	if orientation == "" {
		orientation = "ROW"
	}
	events := make([]string, len(t.Events))
	for i, ev := range t.Events {
		events[i] = ev
		if ev == "UPDATE" && len(t.UpdateColumns) > 0 {
			events[i] = "UPDATE OF " + identList(t.UpdateColumns)
		}
	}
	when := ""
	if c := strings.TrimSpace(t.Condition); c != "" {
		when = " WHEN (" + c + ")"
	}
	return fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH %s%s %s;",
		QuoteIdent(t.Name), t.Timing, strings.Join(events, " OR "), QualifiedName(t.Schema, t.Table), orientation, when, t.ActionStatement), nil
}

func createTrigger(t schema.Trigger) (string, error) {
	stmt, err := triggerStatement(t)
	if err != nil {
		return "", err
	}
	exists := fmt.Sprintf("SELECT 1 FROM information_schema.triggers WHERE trigger_schema = %s AND event_object_table = %s AND trigger_name = %s",
		QuoteLiteral(t.Schema), QuoteLiteral(t.Table), QuoteLiteral(t.Name))
	return guarded(exists, stmt), nil
}

func createView(v schema.View) (string, error) {
	if v.Definition == nil || strings.TrimSpace(*v.Definition) == "" {
		return "", skip("view %s definition is not readable", v.Key())
	}
	body := strings.TrimRight(strings.TrimSpace(*v.Definition), ";")
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s;", QualifiedName(v.Schema, v.Name), body), nil
}

// create renders the forward statement for any descriptor.
func create(d schema.Descriptor) (string, error) {
	switch o := d.(type) {
	case schema.Extension:
		return createExtension(o)
	case schema.Type:
		return createType(o)
	case schema.Sequence:
		return createSequence(o)
	case schema.Table:
		return createTable(o)
	case schema.Column:
		return addColumn(o)
	case schema.Constraint:
		return addConstraint(o)
	case schema.Index:
		return createIndex(o)
	case schema.Function:
		return createFunction(o)
	case schema.Trigger:
		return createTrigger(o)
	case schema.View:
		return createView(o)
	}
	return "", skip("unsupported object %s", d.Key())
}

// drop renders the reversing statement for an object the forward script
// adds. Types and extensions are kept on rollback.
func drop(d schema.Descriptor) (string, error) {
	switch o := d.(type) {
	case schema.View:
		return fmt.Sprintf("DROP VIEW IF EXISTS %s;", QualifiedName(o.Schema, o.Name)), nil
	case schema.Trigger:
		return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", QuoteIdent(o.Name), QualifiedName(o.Schema, o.Table)), nil
	case schema.Function:
		what := "FUNCTION"
		if o.Procedure {
			what = "PROCEDURE"
		}
		return fmt.Sprintf("DROP %s IF EXISTS %s(%s);", what, QualifiedName(o.Schema, o.Name), o.IdentityArgs), nil
	case schema.Index:
		return fmt.Sprintf("DROP INDEX IF EXISTS %s;", QualifiedName(o.Schema, o.Name)), nil
	case schema.Constraint:
		return fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP CONSTRAINT IF EXISTS %s;", QualifiedName(o.Schema, o.Table), QuoteIdent(o.Name)), nil
	case schema.Column:
		return fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP COLUMN IF EXISTS %s;", QualifiedName(o.Schema, o.Table), QuoteIdent(o.Name)), nil
	case schema.Table:
		return fmt.Sprintf("DROP TABLE IF EXISTS %s;", QualifiedName(o.Schema, o.Name)), nil
	case schema.Sequence:
		return fmt.Sprintf("DROP SEQUENCE IF EXISTS %s;", QualifiedName(o.Schema, o.Name)), nil
	}
	return "", skip("%s %s is not removed on rollback", d.Kind().Singular(), d.Key())
}
