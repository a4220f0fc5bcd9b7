package schema

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is the complete captured schema of one database. A snapshot is
// built once and treated as read-only afterwards.
type Snapshot struct {
	Label      string    `yaml:"label"`
	Database   string    `yaml:"database"`
	CapturedAt time.Time `yaml:"captured_at"`

	Extensions  []Extension  `yaml:"extensions"`
	Types       []Type       `yaml:"types"`
	Sequences   []Sequence   `yaml:"sequences"`
	Tables      []Table      `yaml:"tables"`
	Columns     []Column     `yaml:"columns"`
	Constraints []Constraint `yaml:"constraints"`
	Indexes     []Index      `yaml:"indexes"`
	Functions   []Function   `yaml:"functions"`
	Triggers    []Trigger    `yaml:"triggers"`
	Views       []View       `yaml:"views"`
}

// Objects returns the descriptors of kind k in extraction order.
func (s *Snapshot) Objects(k Kind) []Descriptor {
	switch k {
	case Extensions:
		return descriptors(s.Extensions)
	case Types:
		return descriptors(s.Types)
	case Sequences:
		return descriptors(s.Sequences)
	case Tables:
		return descriptors(s.Tables)
	case Columns:
		return descriptors(s.Columns)
	case Constraints:
		return descriptors(s.Constraints)
	case Indexes:
		return descriptors(s.Indexes)
	case Functions:
		return descriptors(s.Functions)
	case Triggers:
		return descriptors(s.Triggers)
	case Views:
		return descriptors(s.Views)
	}
	panic(fmt.Sprintf("schema: unhandled kind %v", k))
}

func descriptors[T Descriptor](items []T) []Descriptor {
	out := make([]Descriptor, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// Count returns the number of objects of kind k.
func (s *Snapshot) Count(k Kind) int {
	return len(s.Objects(k))
}

// Total returns the number of captured objects across all kinds.
func (s *Snapshot) Total() int {
	n := 0
	for _, k := range Kinds {
		n += s.Count(k)
	}
	return n
}

// DuplicateKeyError reports two objects of one kind sharing a key.
type DuplicateKeyError struct {
	Label string
	Kind  Kind
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("snapshot %q: duplicate %s key %q", e.Label, e.Kind.Singular(), e.Key)
}

// Validate checks that keys are unique within every kind.
func (s *Snapshot) Validate() error {
	for _, k := range Kinds {
		seen := make(map[string]struct{}, s.Count(k))
		for _, d := range s.Objects(k) {
			key := d.Key()
			if _, dup := seen[key]; dup {
				return &DuplicateKeyError{Label: s.Label, Kind: k, Key: key}
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// Summary returns a one-line count of every kind.
func (s *Snapshot) Summary() string {
	parts := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		parts = append(parts, fmt.Sprintf("%d %s", s.Count(k), k))
	}
	return strings.Join(parts, ", ")
}
