package schema

import "fmt"

// Kind is one of the ten catalog object categories.
type Kind int

const (
	Extensions Kind = iota
	Types
	Sequences
	Tables
	Columns
	Constraints
	Indexes
	Functions
	Triggers
	Views
)

// Kinds lists every kind in dependency order: an object may only depend on
// objects of the same or an earlier kind.
var Kinds = []Kind{
	Extensions,
	Types,
	Sequences,
	Tables,
	Columns,
	Constraints,
	Indexes,
	Functions,
	Triggers,
	Views,
}

var kindNames = [...]string{
	Extensions:  "extensions",
	Types:       "types",
	Sequences:   "sequences",
	Tables:      "tables",
	Columns:     "columns",
	Constraints: "constraints",
	Indexes:     "indexes",
	Functions:   "functions",
	Triggers:    "triggers",
	Views:       "views",
}

var kindSingular = [...]string{
	Extensions:  "extension",
	Types:       "type",
	Sequences:   "sequence",
	Tables:      "table",
	Columns:     "column",
	Constraints: "constraint",
	Indexes:     "index",
	Functions:   "function",
	Triggers:    "trigger",
	Views:       "view",
}

func (k Kind) valid() bool { return k >= Extensions && k <= Views }

// String returns the plural lower-case name, e.g. "indexes".
func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Singular returns the singular name, e.g. "index".
func (k Kind) Singular() string {
	if !k.valid() {
		return k.String()
	}
	return kindSingular[k]
}

// ParseKind accepts the plural or singular name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == kindNames[k] || s == kindSingular[k] {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}
