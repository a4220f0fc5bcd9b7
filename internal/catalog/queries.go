package catalog

import "github.com/reloquent/pgpromote/internal/schema"

// Every query takes the excluded schema names as $1 (text[]) and aliases its
// columns to the names schema.Snapshot.Load expects.

const extensionsQuery = `
SELECT e.extname     AS name,
       e.extversion  AS version,
       n.nspname     AS schema_name
FROM pg_extension e
JOIN pg_namespace n ON n.oid = e.extnamespace
WHERE n.nspname <> ALL($1::text[])
ORDER BY e.extname`

const typesQuery = `
SELECT n.nspname AS schema_name,
       t.typname AS name,
       CASE t.typtype
            WHEN 'c' THEN 'composite'
            WHEN 'e' THEN 'enum'
            WHEN 'd' THEN 'domain'
       END AS category,
       CASE WHEN t.typtype = 'd'
            THEN pg_catalog.format_type(t.typbasetype, t.typtypmod)
            ELSE pg_catalog.format_type(t.oid, NULL)
       END AS definition,
       (SELECT json_agg(e.enumlabel ORDER BY e.enumsortorder)::text
          FROM pg_enum e
         WHERE e.enumtypid = t.oid) AS labels
FROM pg_type t
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname <> ALL($1::text[])
  AND t.typtype IN ('c', 'e', 'd')
  AND (t.typtype <> 'c'
       OR EXISTS (SELECT 1 FROM pg_class c WHERE c.oid = t.typrelid AND c.relkind = 'c'))
  AND NOT EXISTS (SELECT 1 FROM pg_depend d
                   WHERE d.classid = 'pg_type'::regclass
                     AND d.objid = t.oid
                     AND d.deptype = 'e')
ORDER BY n.nspname, t.typname`

const sequencesQuery = `
SELECT sequence_schema AS schema_name,
       sequence_name   AS name,
       data_type,
       start_value,
       minimum_value,
       maximum_value,
       increment,
       cycle_option    AS cycle
FROM information_schema.sequences
WHERE sequence_schema <> ALL($1::text[])
ORDER BY sequence_schema, sequence_name`

const tablesQuery = `
SELECT schemaname  AS schema_name,
       tablename   AS name,
       rowsecurity AS row_security
FROM pg_tables
WHERE schemaname <> ALL($1::text[])
ORDER BY schemaname, tablename`

const columnsQuery = `
SELECT c.table_schema     AS schema_name,
       c.table_name,
       c.column_name      AS name,
       c.ordinal_position AS position,
       c.data_type,
       c.udt_schema,
       c.udt_name,
       c.is_nullable,
       c.column_default,
       c.character_maximum_length,
       c.numeric_precision,
       c.numeric_scale,
       c.datetime_precision
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema
 AND t.table_name = c.table_name
WHERE c.table_schema <> ALL($1::text[])
  AND t.table_type = 'BASE TABLE'
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const constraintsQuery = `
SELECT n.nspname  AS schema_name,
       cl.relname AS table_name,
       con.conname AS name,
       CASE con.contype
            WHEN 'p' THEN 'PRIMARY KEY'
            WHEN 'f' THEN 'FOREIGN KEY'
            WHEN 'u' THEN 'UNIQUE'
            WHEN 'c' THEN 'CHECK'
       END AS constraint_type,
       (SELECT json_agg(a.attname ORDER BY k.ord)::text
          FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
          JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum) AS columns,
       fn.nspname  AS foreign_schema,
       fcl.relname AS foreign_table,
       (SELECT json_agg(a.attname ORDER BY k.ord)::text
          FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
          JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum) AS foreign_columns,
       CASE WHEN con.contype = 'f' THEN
            CASE con.confdeltype
                 WHEN 'a' THEN 'NO ACTION'
                 WHEN 'r' THEN 'RESTRICT'
                 WHEN 'c' THEN 'CASCADE'
                 WHEN 'n' THEN 'SET NULL'
                 WHEN 'd' THEN 'SET DEFAULT'
            END
       END AS delete_rule,
       CASE WHEN con.contype = 'f' THEN
            CASE con.confupdtype
                 WHEN 'a' THEN 'NO ACTION'
                 WHEN 'r' THEN 'RESTRICT'
                 WHEN 'c' THEN 'CASCADE'
                 WHEN 'n' THEN 'SET NULL'
                 WHEN 'd' THEN 'SET DEFAULT'
            END
       END AS update_rule,
       CASE WHEN con.contype = 'c'
            THEN regexp_replace(pg_get_constraintdef(con.oid), '^CHECK ', '')
       END AS check_clause
FROM pg_constraint con
JOIN pg_class cl ON cl.oid = con.conrelid
JOIN pg_namespace n ON n.oid = cl.relnamespace
LEFT JOIN pg_class fcl ON fcl.oid = con.confrelid
LEFT JOIN pg_namespace fn ON fn.oid = fcl.relnamespace
WHERE n.nspname <> ALL($1::text[])
  AND con.contype IN ('p', 'f', 'u', 'c')
ORDER BY n.nspname, cl.relname, con.conname`

// Indexes that back a primary key, unique or exclusion constraint are left
// out: they belong to the constraint and cannot be dropped on their own.
const indexesQuery = `
SELECT n.nspname AS schema_name,
       t.relname AS table_name,
       i.relname AS name,
       pg_get_indexdef(i.oid) AS definition
FROM pg_index x
JOIN pg_class i ON i.oid = x.indexrelid
JOIN pg_class t ON t.oid = x.indrelid
JOIN pg_namespace n ON n.oid = i.relnamespace
WHERE n.nspname <> ALL($1::text[])
  AND t.relkind IN ('r', 'p', 'm')
  AND NOT EXISTS (SELECT 1 FROM pg_constraint c
                   WHERE c.conindid = x.indexrelid
                     AND c.contype IN ('p', 'u', 'x'))
ORDER BY n.nspname, t.relname, i.relname`

const functionsQuery = `
SELECT n.nspname AS schema_name,
       p.proname AS name,
       pg_get_function_identity_arguments(p.oid) AS identity_args,
       pg_get_function_arguments(p.oid)          AS arguments,
       pg_get_function_result(p.oid)             AS return_type,
       p.prokind::text                           AS prokind,
       l.lanname                                 AS language,
       pg_get_functiondef(p.oid)                 AS definition
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
JOIN pg_language l ON l.oid = p.prolang
WHERE n.nspname <> ALL($1::text[])
  AND p.prokind IN ('f', 'p')
  AND NOT EXISTS (SELECT 1 FROM pg_depend d
                   WHERE d.classid = 'pg_proc'::regclass
                     AND d.objid = p.oid
                     AND d.deptype = 'e')
ORDER BY n.nspname, p.proname, identity_args`

const triggersQuery = `
SELECT t.trigger_schema     AS schema_name,
       t.event_object_table AS table_name,
       t.trigger_name       AS name,
       json_agg(t.event_manipulation ORDER BY t.event_manipulation)::text AS events,
       (SELECT json_agg(u.event_object_column ORDER BY u.event_object_column)::text
          FROM information_schema.triggered_update_columns u
         WHERE u.trigger_schema = t.trigger_schema
           AND u.event_object_table = t.event_object_table
           AND u.trigger_name = t.trigger_name) AS update_columns,
       t.action_timing      AS timing,
       t.action_orientation AS orientation,
       t.action_condition   AS condition,
       t.action_statement
FROM information_schema.triggers t
WHERE t.trigger_schema <> ALL($1::text[])
GROUP BY t.trigger_schema, t.event_object_table, t.trigger_name,
         t.action_timing, t.action_orientation, t.action_condition, t.action_statement
ORDER BY t.trigger_schema, t.event_object_table, t.trigger_name`

const viewsQuery = `
SELECT table_schema    AS schema_name,
       table_name      AS name,
       view_definition AS definition
FROM information_schema.views
WHERE table_schema <> ALL($1::text[])
ORDER BY table_schema, table_name`

// Query returns the introspection query for kind k.
func Query(k schema.Kind) string {
	switch k {
	case schema.Extensions:
		return extensionsQuery
	case schema.Types:
		return typesQuery
	case schema.Sequences:
		return sequencesQuery
	case schema.Tables:
		return tablesQuery
	case schema.Columns:
		return columnsQuery
	case schema.Constraints:
		return constraintsQuery
	case schema.Indexes:
		return indexesQuery
	case schema.Functions:
		return functionsQuery
	case schema.Triggers:
		return triggersQuery
	case schema.Views:
		return viewsQuery
	}
	return ""
}
