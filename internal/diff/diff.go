// Package diff compares two schema snapshots object by object.
package diff

import (
	"fmt"

	"github.com/reloquent/pgpromote/internal/schema"
)

// ComparisonError reports snapshots that cannot be compared.
type ComparisonError struct {
	Reason string
	Err    error
}

func (e *ComparisonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("comparing schemas: %s: %v", e.Reason, e.Err)
	}
	return "comparing schemas: " + e.Reason
}

func (e *ComparisonError) Unwrap() error { return e.Err }

// Change is an object present on both sides whose significant fields differ.
type Change struct {
	Source      schema.Descriptor
	Destination schema.Descriptor
	Fields      []string
}

// Key returns the shared identity key.
func (c Change) Key() string { return c.Source.Key() }

// Bucket holds the result for one kind. Added objects exist only in the
// source, Removed only in the destination.
type Bucket struct {
	Added     []schema.Descriptor
	Removed   []schema.Descriptor
	Modified  []Change
	Unchanged int
}

// Total is the number of differences in the bucket.
func (b Bucket) Total() int { return len(b.Added) + len(b.Removed) + len(b.Modified) }

// DiffSet is the full comparison result, one bucket per kind.
type DiffSet struct {
	SourceLabel      string
	DestinationLabel string
	buckets          map[schema.Kind]*Bucket
}

// Bucket returns the result for kind k. It is never nil.
func (d *DiffSet) Bucket(k schema.Kind) *Bucket {
	if b, ok := d.buckets[k]; ok {
		return b
	}
	return &Bucket{}
}

// HasChanges reports whether any kind has a difference.
func (d *DiffSet) HasChanges() bool {
	for _, k := range schema.Kinds {
		if d.Bucket(k).Total() > 0 {
			return true
		}
	}
	return false
}

// Totals counts differences across all kinds.
type Totals struct {
	Added, Removed, Modified int
}

// Sum is the number of differences of any sort.
func (t Totals) Sum() int { return t.Added + t.Removed + t.Modified }

// Totals sums every bucket.
func (d *DiffSet) Totals() Totals {
	var t Totals
	for _, k := range schema.Kinds {
		b := d.Bucket(k)
		t.Added += len(b.Added)
		t.Removed += len(b.Removed)
		t.Modified += len(b.Modified)
	}
	return t
}

// Compare diffs source against destination. Every key of a kind lands in
// exactly one of added, removed, modified or unchanged, and each list keeps
// the order in which its objects were extracted.
func Compare(source, destination *schema.Snapshot) (*DiffSet, error) {
	if source == nil || destination == nil {
		return nil, &ComparisonError{Reason: "both snapshots are required"}
	}
	for _, s := range []*schema.Snapshot{source, destination} {
		if err := s.Validate(); err != nil {
			return nil, &ComparisonError{Reason: "invalid snapshot", Err: err}
		}
	}

	d := &DiffSet{
		SourceLabel:      source.Label,
		DestinationLabel: destination.Label,
		buckets:          make(map[schema.Kind]*Bucket, len(schema.Kinds)),
	}
	for _, k := range schema.Kinds {
		d.buckets[k] = compareKind(source.Objects(k), destination.Objects(k))
	}
	return d, nil
}

func compareKind(src, dst []schema.Descriptor) *Bucket {
	b := &Bucket{}

	dstByKey := make(map[string]schema.Descriptor, len(dst))
	for _, o := range dst {
		dstByKey[o.Key()] = o
	}
	srcKeys := make(map[string]struct{}, len(src))

	for _, s := range src {
		key := s.Key()
		srcKeys[key] = struct{}{}
		o, ok := dstByKey[key]
		if !ok {
			b.Added = append(b.Added, s)
			continue
		}
		if fields := s.ChangedFields(o); len(fields) > 0 {
			b.Modified = append(b.Modified, Change{Source: s, Destination: o, Fields: fields})
		} else {
			b.Unchanged++
		}
	}

	for _, o := range dst {
		if _, ok := srcKeys[o.Key()]; !ok {
			b.Removed = append(b.Removed, o)
		}
	}
	return b
}
