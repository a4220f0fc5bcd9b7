package safety

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// rawStmt is one top-level statement of a parsed script.
type rawStmt struct {
	node map[string]any
	text string
}

// parse splits script into statements using the PostgreSQL parser.
func parse(script string) ([]rawStmt, error) {
	out, err := pgquery.ParseToJSON(script)
	if err != nil {
		return nil, err
	}
	var tree struct {
		Stmts []struct {
			Stmt     map[string]any `json:"stmt"`
			Location int            `json:"stmt_location"`
			Len      int            `json:"stmt_len"`
		} `json:"stmts"`
	}
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		return nil, fmt.Errorf("decoding parse tree: %w", err)
	}

	stmts := make([]rawStmt, 0, len(tree.Stmts))
	for _, s := range tree.Stmts {
		stmts = append(stmts, rawStmt{node: s.Stmt, text: slice(script, s.Location, s.Len)})
	}
	return stmts, nil
}

// slice cuts a statement out of script. A zero length runs to the end.
func slice(script string, loc, n int) string {
	if loc < 0 || loc > len(script) {
		return ""
	}
	end := len(script)
	if n > 0 && loc+n < end {
		end = loc + n
	}
	return stripLeadingComments(script[loc:end])
}

// stripLeadingComments drops the comments the parser attaches to the
// front of a statement's span.
func stripLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return s
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}

// nodeType returns the name and fields of a single-key node such as
// {"DropStmt": {...}}.
func nodeType(v any) (string, map[string]any) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil
	}
	for name, body := range m {
		fields, _ := body.(map[string]any)
		return name, fields
	}
	return "", nil
}

// walk visits every object-valued entry below v in key order. Returning
// false from visit skips that entry's subtree.
func walk(v any, visit func(name string, body map[string]any) bool) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := x[k]
			if m, ok := child.(map[string]any); ok && !visit(k, m) {
				continue
			}
			walk(child, visit)
		}
	case []any:
		for _, c := range x {
			walk(c, visit)
		}
	}
}

// field returns the first present key, tolerating both spellings the
// parser has used across releases.
func field(m map[string]any, names ...string) any {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v
		}
	}
	return nil
}

func str(m map[string]any, names ...string) string {
	s, _ := field(m, names...).(string)
	return s
}

func boolean(m map[string]any, names ...string) bool {
	b, _ := field(m, names...).(bool)
	return b
}

// child unwraps {"Name": {...}} held in v.
func child(v any, name string) map[string]any {
	m, _ := v.(map[string]any)
	c, _ := m[name].(map[string]any)
	return c
}

// stringNode reads the value of a {"String": {"sval": ...}} node.
func stringNode(v any) string {
	return str(child(v, "String"), "sval", "str")
}

// dollarQuote wraps s in a dollar-quote tag that does not occur in s.
func dollarQuote(s string) string {
	tag := "$$"
	for i := 0; strings.Contains(s, tag); i++ {
		tag = fmt.Sprintf("$q%d$", i)
	}
	return tag + s + tag
}

// excerpt shortens a statement for error messages.
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 160 {
		return s[:157] + "..."
	}
	return s
}
