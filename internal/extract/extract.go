// Package extract builds complete schema snapshots from live databases.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reloquent/pgpromote/internal/catalog"
	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/logging"
	"github.com/reloquent/pgpromote/internal/schema"
)

// Builder turns catalog rows into snapshots.
type Builder struct {
	reader *catalog.Reader
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder returns a Builder reading through reader.
func NewBuilder(reader *catalog.Reader, logger *slog.Logger) *Builder {
	return &Builder{reader: reader, logger: logging.OrDiscard(logger), now: time.Now}
}

// ExtractComplete opens one connection from factory, reads every kind in
// dependency order and returns the snapshot. Any failure aborts the whole
// extraction; a partial snapshot is never returned.
func (b *Builder) ExtractComplete(ctx context.Context, factory database.Factory, label string) (*schema.Snapshot, error) {
	conn, err := factory.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting %s schema: %w", label, err)
	}
	defer conn.Close()

	snap, err := b.ExtractFrom(ctx, conn, label)
	if err != nil {
		return nil, err
	}
	b.logger.Info("schema extracted", "label", label, "target", factory.Describe(), "objects", snap.Total())
	return snap, nil
}

// ExtractFrom builds a snapshot over an already open connection.
func (b *Builder) ExtractFrom(ctx context.Context, conn database.Conn, label string) (*schema.Snapshot, error) {
	snap := &schema.Snapshot{Label: label, CapturedAt: b.now().UTC()}

	rows, err := conn.Query(ctx, "SELECT current_database() AS name")
	switch {
	case err != nil:
		b.logger.Warn("reading database name failed", "label", label, "error", err)
	case len(rows) > 0:
		snap.Database = rows[0].String("name")
	}

	for _, k := range schema.Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := b.reader.Read(ctx, conn, k)
		if err != nil {
			return nil, fmt.Errorf("extracting %s schema: %w", label, err)
		}
		if err := snap.Load(k, rows); err != nil {
			return nil, fmt.Errorf("extracting %s schema: %w", label, err)
		}
	}

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("extracting %s schema: %w", label, err)
	}
	return snap, nil
}

// Pair holds the two sides of a comparison.
type Pair struct {
	Source      *schema.Snapshot
	Destination *schema.Snapshot
}

// ExtractPair extracts the source and destination concurrently and waits
// for both. The first failure cancels the other extraction.
func (b *Builder) ExtractPair(ctx context.Context, source, destination database.Factory) (*Pair, error) {
	g, gctx := errgroup.WithContext(ctx)
	var pair Pair

	g.Go(func() error {
		s, err := b.ExtractComplete(gctx, source, "source")
		pair.Source = s
		return err
	})
	g.Go(func() error {
		s, err := b.ExtractComplete(gctx, destination, "destination")
		pair.Destination = s
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &pair, nil
}
