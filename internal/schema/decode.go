package schema

import (
	"fmt"

	"github.com/reloquent/pgpromote/internal/database"
)

// Load decodes catalog rows of kind k into the snapshot, replacing anything
// previously loaded for that kind. Column names follow the catalog queries.
func (s *Snapshot) Load(k Kind, rows []database.Row) error {
	var err error
	switch k {
	case Extensions:
		s.Extensions, err = decodeAll(rows, decodeExtension)
	case Types:
		s.Types, err = decodeAll(rows, decodeType)
	case Sequences:
		s.Sequences, err = decodeAll(rows, decodeSequence)
	case Tables:
		s.Tables, err = decodeAll(rows, decodeTable)
	case Columns:
		s.Columns, err = decodeAll(rows, decodeColumn)
	case Constraints:
		s.Constraints, err = decodeAll(rows, decodeConstraint)
	case Indexes:
		s.Indexes, err = decodeAll(rows, decodeIndex)
	case Functions:
		s.Functions, err = decodeAll(rows, decodeFunction)
	case Triggers:
		s.Triggers, err = decodeAll(rows, decodeTrigger)
	case Views:
		s.Views, err = decodeAll(rows, decodeView)
	default:
		return fmt.Errorf("unhandled kind %v", k)
	}
	if err != nil {
		return fmt.Errorf("decoding %s: %w", k, err)
	}
	return nil
}

func decodeAll[T any](rows []database.Row, fn func(database.Row) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, r := range rows {
		v, err := fn(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func requireName(r database.Row, cols ...string) error {
	for _, c := range cols {
		if r.String(c) == "" {
			return fmt.Errorf("missing %s", c)
		}
	}
	return nil
}

func intPtr(r database.Row, col string) *int {
	n, ok := r.NullInt(col)
	if !ok {
		return nil
	}
	v := int(n)
	return &v
}

func decodeExtension(r database.Row) (Extension, error) {
	if err := requireName(r, "name"); err != nil {
		return Extension{}, err
	}
	return Extension{
		Name:    r.String("name"),
		Version: r.String("version"),
		Schema:  r.String("schema_name"),
	}, nil
}

func decodeType(r database.Row) (Type, error) {
	if err := requireName(r, "schema_name", "name"); err != nil {
		return Type{}, err
	}
	labels, err := r.Strings("labels")
	if err != nil {
		return Type{}, err
	}
	return Type{
		Schema:     r.String("schema_name"),
		Name:       r.String("name"),
		Category:   r.String("category"),
		Definition: r.String("definition"),
		Labels:     labels,
	}, nil
}

func decodeSequence(r database.Row) (Sequence, error) {
	if err := requireName(r, "schema_name", "name"); err != nil {
		return Sequence{}, err
	}
	return Sequence{
		Schema:       r.String("schema_name"),
		Name:         r.String("name"),
		DataType:     r.String("data_type"),
		StartValue:   r.String("start_value"),
		MinimumValue: r.String("minimum_value"),
		MaximumValue: r.String("maximum_value"),
		Increment:    r.String("increment"),
		Cycle:        r.Bool("cycle"),
	}, nil
}

func decodeTable(r database.Row) (Table, error) {
	if err := requireName(r, "schema_name", "name"); err != nil {
		return Table{}, err
	}
	return Table{
		Schema:      r.String("schema_name"),
		Name:        r.String("name"),
		RowSecurity: r.Bool("row_security"),
	}, nil
}

func decodeColumn(r database.Row) (Column, error) {
	if err := requireName(r, "schema_name", "table_name", "name", "data_type"); err != nil {
		return Column{}, err
	}
	return Column{
		Schema:            r.String("schema_name"),
		Table:             r.String("table_name"),
		Name:              r.String("name"),
		Position:          int(r.Int("position")),
		DataType:          r.String("data_type"),
		UDTSchema:         r.String("udt_schema"),
		UDTName:           r.String("udt_name"),
		Nullable:          r.Bool("is_nullable"),
		Default:           r.String("column_default"),
		CharMaxLength:     intPtr(r, "character_maximum_length"),
		NumericPrecision:  intPtr(r, "numeric_precision"),
		NumericScale:      intPtr(r, "numeric_scale"),
		DatetimePrecision: intPtr(r, "datetime_precision"),
	}, nil
}

func decodeConstraint(r database.Row) (Constraint, error) {
	if err := requireName(r, "schema_name", "table_name", "name", "constraint_type"); err != nil {
		return Constraint{}, err
	}
	cols, err := r.Strings("columns")
	if err != nil {
		return Constraint{}, err
	}
	fcols, err := r.Strings("foreign_columns")
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{
		Schema:         r.String("schema_name"),
		Table:          r.String("table_name"),
		Name:           r.String("name"),
		Type:           r.String("constraint_type"),
		Columns:        cols,
		ForeignSchema:  r.String("foreign_schema"),
		ForeignTable:   r.String("foreign_table"),
		ForeignColumns: fcols,
		DeleteRule:     r.String("delete_rule"),
		UpdateRule:     r.String("update_rule"),
		CheckClause:    r.String("check_clause"),
	}, nil
}

func decodeIndex(r database.Row) (Index, error) {
	if err := requireName(r, "schema_name", "name", "definition"); err != nil {
		return Index{}, err
	}
	return Index{
		Schema:     r.String("schema_name"),
		Table:      r.String("table_name"),
		Name:       r.String("name"),
		Definition: r.String("definition"),
	}, nil
}

func decodeFunction(r database.Row) (Function, error) {
	if err := requireName(r, "schema_name", "name"); err != nil {
		return Function{}, err
	}
	return Function{
		Schema:       r.String("schema_name"),
		Name:         r.String("name"),
		IdentityArgs: r.String("identity_args"),
		Arguments:    r.String("arguments"),
		ReturnType:   r.String("return_type"),
		Procedure:    r.String("prokind") == "p",
		Language:     r.String("language"),
		Definition:   r.String("definition"),
	}, nil
}

func decodeTrigger(r database.Row) (Trigger, error) {
	if err := requireName(r, "schema_name", "table_name", "name"); err != nil {
		return Trigger{}, err
	}
	events, err := r.Strings("events")
	if err != nil {
		return Trigger{}, err
	}
	updateColumns, err := r.Strings("update_columns")
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{
		Schema:          r.String("schema_name"),
		Table:           r.String("table_name"),
		Name:            r.String("name"),
		Events:          events,
		UpdateColumns:   updateColumns,
		Timing:          r.String("timing"),
		Orientation:     r.String("orientation"),
		Condition:       r.String("condition"),
		ActionStatement: r.String("action_statement"),
	}, nil
}

func decodeView(r database.Row) (View, error) {
	if err := requireName(r, "schema_name", "name"); err != nil {
		return View{}, err
	}
	v := View{Schema: r.String("schema_name"), Name: r.String("name")}
	if def, ok := r.NullString("definition"); ok {
		v.Definition = &def
	}
	return v, nil
}
