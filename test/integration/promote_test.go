//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/reloquent/pgpromote/internal/engine"
	"github.com/reloquent/pgpromote/internal/schema"
)

const sourceDDL = `
CREATE TYPE public.order_status AS ENUM ('new', 'paid', 'shipped');
CREATE TABLE public.customers (id integer PRIMARY KEY, email varchar(200) NOT NULL UNIQUE);
CREATE TABLE public.orders (
    id integer PRIMARY KEY,
    customer_id integer REFERENCES public.customers(id) ON DELETE CASCADE,
    status public.order_status NOT NULL DEFAULT 'new',
    total numeric(10,2) CHECK (total >= 0),
    placed_at timestamp(3) with time zone DEFAULT now(),
    tags text[]
);
CREATE INDEX orders_customer_idx ON public.orders (customer_id);
CREATE FUNCTION public.calc_tax(amount numeric) RETURNS numeric
    LANGUAGE sql IMMUTABLE AS $$ SELECT amount * 0.2 $$;
CREATE FUNCTION public.touch() RETURNS trigger LANGUAGE plpgsql AS $$
BEGIN
    NEW.placed_at := now();
    RETURN NEW;
END $$;
CREATE TRIGGER orders_touch BEFORE INSERT OR UPDATE ON public.orders
    FOR EACH ROW EXECUTE FUNCTION public.touch();
CREATE VIEW public.paid_orders AS SELECT id, total FROM public.orders WHERE status = 'paid';
`

func TestPromoteAndRollback(t *testing.T) {
	skipIfNoPostgres(t)
	ctx := context.Background()

	src, dst := freshDatabases(t)
	exec(t, src, sourceDDL)

	eng := engine.New(loadConfig(t, src, dst), nil)

	g, err := eng.Generate(ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !g.Diff.HasChanges() || g.Forward.Len() == 0 {
		t.Fatal("expected changes to promote")
	}
	if n := len(g.Diff.Bucket(schema.Tables).Added); n != 2 {
		t.Errorf("added tables = %d, want 2", n)
	}

	if _, err := eng.Migrate(ctx, false); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c, err := eng.Compare(ctx)
	if err != nil {
		t.Fatalf("compare after migrate: %v", err)
	}
	for _, k := range schema.Kinds {
		if b := c.Diff.Bucket(k); len(b.Added) > 0 || len(b.Removed) > 0 {
			t.Errorf("%s not converged: added %d, removed %d", k, len(b.Added), len(b.Removed))
		}
	}

	// The same script applied twice changes nothing.
	if _, err := eng.Migrate(ctx, false); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	if _, err := eng.Rollback(ctx, false); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	c, err = eng.Compare(ctx)
	if err != nil {
		t.Fatalf("compare after rollback: %v", err)
	}
	if n := len(c.Diff.Bucket(schema.Tables).Added); n != 2 {
		t.Errorf("after rollback added tables = %d, want 2", n)
	}
	if n := len(c.Diff.Bucket(schema.Types).Added); n != 0 {
		t.Errorf("types should survive rollback, %d missing", n)
	}
}
