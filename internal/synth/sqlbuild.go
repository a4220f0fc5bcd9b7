package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var simpleIdent = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reserved holds PostgreSQL keywords that cannot be used as bare column or
// table names.
var reserved = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true, "array": true,
	"as": true, "asc": true, "asymmetric": true, "authorization": true, "binary": true,
	"both": true, "case": true, "cast": true, "check": true, "collate": true, "collation": true,
	"column": true, "concurrently": true, "constraint": true, "create": true, "cross": true,
	"current_catalog": true, "current_date": true, "current_role": true, "current_schema": true,
	"current_time": true, "current_timestamp": true, "current_user": true, "default": true,
	"deferrable": true, "desc": true, "distinct": true, "do": true, "else": true, "end": true,
	"except": true, "false": true, "fetch": true, "for": true, "foreign": true, "freeze": true,
	"from": true, "full": true, "grant": true, "group": true, "having": true, "ilike": true,
	"in": true, "initially": true, "inner": true, "intersect": true, "into": true, "is": true,
	"isnull": true, "join": true, "lateral": true, "leading": true, "left": true, "like": true,
	"limit": true, "localtime": true, "localtimestamp": true, "natural": true, "not": true,
	"notnull": true, "null": true, "offset": true, "on": true, "only": true, "or": true,
	"order": true, "outer": true, "overlaps": true, "placing": true, "primary": true,
	"references": true, "returning": true, "right": true, "select": true, "session_user": true,
	"similar": true, "some": true, "symmetric": true, "system_user": true, "table": true,
	"tablesample": true, "then": true, "to": true, "trailing": true, "true": true, "union": true,
	"unique": true, "user": true, "using": true, "variadic": true, "verbose": true, "when": true,
	"where": true, "window": true, "with": true,
}

// QuoteIdent returns name as written when it is a plain lower-case
// identifier, and double-quoted otherwise (mixed case, digit-leading,
// punctuation, reserved words).
func QuoteIdent(name string) string {
	if simpleIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return pq.QuoteIdentifier(name)
}

// QualifiedName renders schema.name with each part quoted as needed.
func QualifiedName(schemaName, name string) string {
	if schemaName == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schemaName) + "." + QuoteIdent(name)
}

// QuoteLiteral renders s as a SQL string literal.
func QuoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}

// identList quotes and joins column names.
func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// doBlock wraps a PL/pgSQL body in an anonymous DO block, choosing a
// dollar-quote tag that does not occur in the body.
func doBlock(body string) string {
	tag := "$$"
	for i := 0; strings.Contains(body, tag); i++ {
		tag = fmt.Sprintf("$pgp%d$", i)
	}
	return fmt.Sprintf("DO %s\nBEGIN\n%s\nEND %s;", tag, indent(body, "    "), tag)
}

// guarded emits stmt inside a DO block that runs it only when exists
// returns no rows.
func guarded(exists, stmt string) string {
	body := fmt.Sprintf("IF NOT EXISTS (\n    %s\n) THEN\n    %s\nEND IF;", exists, ensureSemicolon(stmt))
	return doBlock(body)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func ensureSemicolon(stmt string) string {
	stmt = strings.TrimRight(stmt, " \t\r\n")
	if strings.HasSuffix(stmt, ";") {
		return stmt
	}
	return stmt + ";"
}

// comment prefixes every line of text with "-- ".
func comment(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("-- "+l, " ")
	}
	return strings.Join(lines, "\n")
}
