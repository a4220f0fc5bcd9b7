package schema

import (
	"slices"
	"strings"
)

// Descriptor is a captured catalog object.
type Descriptor interface {
	Kind() Kind
	// Key identifies the object within its kind. Equal keys across two
	// snapshots denote the same object.
	Key() string
	// ChangedFields lists the significant fields that differ from other,
	// which must be of the same kind. An empty result means unchanged.
	ChangedFields(other Descriptor) []string
}

// qualify joins name parts with ".". A part that is not a plain lower-case
// identifier is double-quoted so that dotted names cannot collide.
func qualify(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = keyPart(p)
	}
	return strings.Join(quoted, ".")
}

func keyPart(p string) string {
	if plainIdent(p) {
		return p
	}
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}

func plainIdent(p string) bool {
	if p == "" {
		return false
	}
	for i, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '$'):
		default:
			return false
		}
	}
	return true
}

type changes []string

func (c *changes) check(name string, differ bool) {
	if differ {
		*c = append(*c, name)
	}
}

// Extension is an installed extension. Its key is the bare name since
// extension names are database-wide.
type Extension struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Schema  string `yaml:"schema"`
}

func (e Extension) Kind() Kind { return Extensions }
func (e Extension) Key() string { return e.Name }
func (e Extension) ChangedFields(other Descriptor) []string {
	o := other.(Extension)
	var c changes
	c.check("version", e.Version != o.Version)
	c.check("schema", e.Schema != o.Schema)
	return c
}

// Type categories.
const (
	TypeComposite = "composite"
	TypeEnum      = "enum"
	TypeDomain    = "domain"
)

// Type is a user-defined composite, enum or domain type.
type Type struct {
	Schema     string   `yaml:"schema"`
	Name       string   `yaml:"name"`
	Category   string   `yaml:"category"`
	Definition string   `yaml:"definition,omitempty"`
	Labels     []string `yaml:"labels,omitempty"`
}

func (t Type) Kind() Kind { return Types }
func (t Type) Key() string { return qualify(t.Schema, t.Name) }
func (t Type) ChangedFields(other Descriptor) []string {
	o := other.(Type)
	var c changes
	c.check("category", t.Category != o.Category)
	c.check("definition", t.Definition != o.Definition)
	c.check("labels", !slices.Equal(t.Labels, o.Labels))
	return c
}

// Sequence options are kept as the catalog's text rendering.
type Sequence struct {
	Schema       string `yaml:"schema"`
	Name         string `yaml:"name"`
	DataType     string `yaml:"data_type,omitempty"`
	StartValue   string `yaml:"start_value,omitempty"`
	MinimumValue string `yaml:"minimum_value,omitempty"`
	MaximumValue string `yaml:"maximum_value,omitempty"`
	Increment    string `yaml:"increment,omitempty"`
	Cycle        bool   `yaml:"cycle,omitempty"`
}

func (s Sequence) Kind() Kind { return Sequences }
func (s Sequence) Key() string { return qualify(s.Schema, s.Name) }
func (s Sequence) ChangedFields(other Descriptor) []string {
	o := other.(Sequence)
	var c changes
	c.check("data_type", s.DataType != o.DataType)
	c.check("start_value", s.StartValue != o.StartValue)
	c.check("minimum_value", s.MinimumValue != o.MinimumValue)
	c.check("maximum_value", s.MaximumValue != o.MaximumValue)
	c.check("increment", s.Increment != o.Increment)
	c.check("cycle", s.Cycle != o.Cycle)
	return c
}

// Table is a plain table. Columns are captured separately.
type Table struct {
	Schema      string `yaml:"schema"`
	Name        string `yaml:"name"`
	RowSecurity bool   `yaml:"row_security,omitempty"`
}

func (t Table) Kind() Kind { return Tables }
func (t Table) Key() string { return qualify(t.Schema, t.Name) }
func (t Table) ChangedFields(other Descriptor) []string {
	o := other.(Table)
	var c changes
	c.check("row_security", t.RowSecurity != o.RowSecurity)
	return c
}

// Column belongs to a table identified by Schema and Table.
type Column struct {
	Schema            string `yaml:"schema"`
	Table             string `yaml:"table"`
	Name              string `yaml:"name"`
	Position          int    `yaml:"position"`
	DataType          string `yaml:"data_type"`
	UDTSchema         string `yaml:"udt_schema,omitempty"`
	UDTName           string `yaml:"udt_name,omitempty"`
	Nullable          bool   `yaml:"nullable"`
	Default           string `yaml:"default,omitempty"`
	CharMaxLength     *int   `yaml:"char_max_length,omitempty"`
	NumericPrecision  *int   `yaml:"numeric_precision,omitempty"`
	NumericScale      *int   `yaml:"numeric_scale,omitempty"`
	DatetimePrecision *int   `yaml:"datetime_precision,omitempty"`
}

func (c Column) Kind() Kind { return Columns }
func (c Column) Key() string { return qualify(c.Schema, c.Table, c.Name) }

// TableKey is the key of the owning table.
func (c Column) TableKey() string { return qualify(c.Schema, c.Table) }

// ChangedFields compares the type (with its modifiers), nullability and
// default. Ordinal position is ignored.
func (c Column) ChangedFields(other Descriptor) []string {
	o := other.(Column)
	var ch changes
	ch.check("data_type", c.DataType != o.DataType || c.UDTSchema != o.UDTSchema || c.UDTName != o.UDTName ||
		!eqInt(c.CharMaxLength, o.CharMaxLength) || !eqInt(c.NumericPrecision, o.NumericPrecision) ||
		!eqInt(c.NumericScale, o.NumericScale) || !eqInt(c.DatetimePrecision, o.DatetimePrecision))
	ch.check("nullable", c.Nullable != o.Nullable)
	ch.check("default", c.Default != o.Default)
	return ch
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Constraint types as reported by information_schema.
const (
	PrimaryKey = "PRIMARY KEY"
	ForeignKey = "FOREIGN KEY"
	Unique     = "UNIQUE"
	Check      = "CHECK"
)

// Constraint is a table constraint. Columns are in key order.
type Constraint struct {
	Schema         string   `yaml:"schema"`
	Table          string   `yaml:"table"`
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Columns        []string `yaml:"columns,omitempty"`
	ForeignSchema  string   `yaml:"foreign_schema,omitempty"`
	ForeignTable   string   `yaml:"foreign_table,omitempty"`
	ForeignColumns []string `yaml:"foreign_columns,omitempty"`
	DeleteRule     string   `yaml:"delete_rule,omitempty"`
	UpdateRule     string   `yaml:"update_rule,omitempty"`
	CheckClause    string   `yaml:"check_clause,omitempty"`
}

func (c Constraint) Kind() Kind { return Constraints }
func (c Constraint) Key() string { return qualify(c.Schema, c.Table, c.Name) }
func (c Constraint) TableKey() string { return qualify(c.Schema, c.Table) }
func (c Constraint) ChangedFields(other Descriptor) []string {
	o := other.(Constraint)
	var ch changes
	ch.check("type", c.Type != o.Type)
	ch.check("columns", !slices.Equal(c.Columns, o.Columns))
	ch.check("references", c.ForeignSchema != o.ForeignSchema || c.ForeignTable != o.ForeignTable ||
		!slices.Equal(c.ForeignColumns, o.ForeignColumns))
	ch.check("delete_rule", c.DeleteRule != o.DeleteRule)
	ch.check("update_rule", c.UpdateRule != o.UpdateRule)
	ch.check("check_clause", c.CheckClause != o.CheckClause)
	return ch
}

// Index keeps the server's own CREATE INDEX rendering.
type Index struct {
	Schema     string `yaml:"schema"`
	Table      string `yaml:"table"`
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
}

func (i Index) Kind() Kind { return Indexes }
func (i Index) Key() string { return qualify(i.Schema, i.Name) }
func (i Index) ChangedFields(other Descriptor) []string {
	o := other.(Index)
	var c changes
	c.check("table", i.Table != o.Table)
	c.check("definition", i.Definition != o.Definition)
	return c
}

// Function is a function or procedure. Overloads are distinct objects,
// told apart by their identity arguments.
type Function struct {
	Schema       string `yaml:"schema"`
	Name         string `yaml:"name"`
	IdentityArgs string `yaml:"identity_args"`
	Arguments    string `yaml:"arguments,omitempty"`
	ReturnType   string `yaml:"return_type,omitempty"`
	Procedure    bool   `yaml:"procedure,omitempty"`
	Language     string `yaml:"language,omitempty"`
	Definition   string `yaml:"definition"`
}

func (f Function) Kind() Kind { return Functions }
func (f Function) Key() string { return qualify(f.Schema, f.Name) + "(" + f.IdentityArgs + ")" }
func (f Function) ChangedFields(other Descriptor) []string {
	o := other.(Function)
	var c changes
	c.check("definition", f.Definition != o.Definition)
	return c
}

// Trigger is keyed by its table because trigger names are table-scoped.
// UpdateColumns narrows an UPDATE event to the listed columns, and
// Condition holds the WHEN expression.
type Trigger struct {
	Schema          string   `yaml:"schema"`
	Table           string   `yaml:"table"`
	Name            string   `yaml:"name"`
	Events          []string `yaml:"events"`
	UpdateColumns   []string `yaml:"update_columns,omitempty"`
	Timing          string   `yaml:"timing"`
	Orientation     string   `yaml:"orientation"`
	Condition       string   `yaml:"condition,omitempty"`
	ActionStatement string   `yaml:"action_statement"`
}

func (t Trigger) Kind() Kind { return Triggers }
func (t Trigger) Key() string { return qualify(t.Schema, t.Table, t.Name) }
func (t Trigger) ChangedFields(other Descriptor) []string {
	o := other.(Trigger)
	var c changes
	c.check("action_statement", t.ActionStatement != o.ActionStatement)
	c.check("timing", t.Timing != o.Timing)
	c.check("events", !slices.Equal(t.Events, o.Events) || !slices.Equal(t.UpdateColumns, o.UpdateColumns))
	c.check("orientation", t.Orientation != o.Orientation)
	c.check("condition", t.Condition != o.Condition)
	return c
}

// View definition is nil when the catalog withholds it from the reading role.
type View struct {
	Schema     string  `yaml:"schema"`
	Name       string  `yaml:"name"`
	Definition *string `yaml:"definition,omitempty"`
}

func (v View) Kind() Kind { return Views }
func (v View) Key() string { return qualify(v.Schema, v.Name) }
func (v View) ChangedFields(other Descriptor) []string {
	o := other.(View)
	var c changes
	c.check("definition", v.DefinitionText() != o.DefinitionText() || (v.Definition == nil) != (o.Definition == nil))
	return c
}

// DefinitionText returns the definition or "" when unavailable.
func (v View) DefinitionText() string {
	if v.Definition == nil {
		return ""
	}
	return *v.Definition
}
