// Package safety decides whether a generated script may be sent to a
// database. Scripts are parsed with the PostgreSQL parser and checked
// statement by statement, so identifiers and string literals that merely
// contain a destructive phrase are not mistaken for one.
package safety

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"github.com/reloquent/pgpromote/internal/logging"
)

// maxDepth bounds how far nested DO blocks and dynamic SQL are followed.
const maxDepth = 4

// ValidationRejected means a script failed the gate and was not executed.
type ValidationRejected struct {
	Policy    string
	Reason    string
	Statement string
}

func (e *ValidationRejected) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("%s script rejected: %s", e.Policy, e.Reason)
	}
	return fmt.Sprintf("%s script rejected: %s in %q", e.Policy, e.Reason, excerpt(e.Statement))
}

// Policy selects which statements a script may contain.
type Policy struct {
	Name string
	// AllowDropTableIfExists permits DROP TABLE ... IF EXISTS.
	AllowDropTableIfExists bool
}

var (
	// ForwardPolicy denies DROP TABLE, DROP DATABASE, TRUNCATE and DELETE.
	ForwardPolicy = Policy{Name: "migration"}
	// RollbackPolicy additionally lets rollback scripts drop the tables
	// their forward script created.
	RollbackPolicy = Policy{Name: "rollback", AllowDropTableIfExists: true}
)

// Gate validates scripts under one policy.
type Gate struct {
	policy Policy
	logger *slog.Logger
}

// NewGate returns a gate for policy. A nil logger discards output.
func NewGate(policy Policy, logger *slog.Logger) *Gate {
	return &Gate{policy: policy, logger: logging.OrDiscard(logger)}
}

// Policy returns the gate's policy.
func (g *Gate) Policy() Policy { return g.policy }

// ValidateFile reads and validates the script at path.
func (g *Gate) ValidateFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	script := string(data)
	return script, g.Validate(script)
}

// Validate returns nil when script is wrapped in BEGIN/COMMIT and contains
// no denied statement, and a *ValidationRejected otherwise.
func (g *Gate) Validate(script string) error {
	stmts, err := parse(script)
	if err != nil {
		return g.reject("script does not parse: "+err.Error(), "")
	}
	if err := g.checkEnvelope(stmts); err != nil {
		return err
	}

	for _, st := range stmts[1 : len(stmts)-1] {
		if reason := g.inspect(st.node, 0); reason != "" {
			g.logger.Warn("script rejected", "policy", g.policy.Name, "reason", reason, "statement", excerpt(st.text))
			return g.reject(reason, st.text)
		}
	}
	g.logger.Debug("script validated", "policy", g.policy.Name, "statements", len(stmts))
	return nil
}

func (g *Gate) reject(reason, stmt string) error {
	return &ValidationRejected{Policy: g.policy.Name, Reason: reason, Statement: stmt}
}

func transactionKind(node map[string]any) string {
	name, body := nodeType(node)
	if name != "TransactionStmt" {
		return ""
	}
	return str(body, "kind")
}

// checkEnvelope requires BEGIN first, COMMIT last and no other transaction
// control in between.
func (g *Gate) checkEnvelope(stmts []rawStmt) error {
	if len(stmts) < 2 {
		return g.reject("missing BEGIN/COMMIT envelope", "")
	}
	switch transactionKind(stmts[0].node) {
	case "TRANS_STMT_BEGIN", "TRANS_STMT_START":
	default:
		return g.reject("script must start with BEGIN", stmts[0].text)
	}
	last := stmts[len(stmts)-1]
	if transactionKind(last.node) != "TRANS_STMT_COMMIT" {
		return g.reject("script must end with COMMIT", last.text)
	}
	for _, st := range stmts[1 : len(stmts)-1] {
		if transactionKind(st.node) != "" {
			return g.reject("transaction control inside the envelope", st.text)
		}
	}
	return nil
}

// inspect searches a parse tree for denied statements and returns the
// reason for the first one found.
func (g *Gate) inspect(tree any, depth int) string {
	var reason string
	walk(tree, func(name string, body map[string]any) bool {
		if reason != "" {
			return false
		}
		switch name {
		case "CreateFunctionStmt":
			// Function bodies are stored here, not run.
			return false
		case "DeleteStmt":
			reason = "DELETE FROM"
		case "TruncateStmt":
			reason = "TRUNCATE"
		case "DropdbStmt":
			reason = "DROP DATABASE"
		case "DropStmt":
			if str(body, "removeType", "remove_type") == "OBJECT_TABLE" &&
				!(g.policy.AllowDropTableIfExists && boolean(body, "missing_ok", "missingOk")) {
				reason = "DROP TABLE"
			}
		case "DoStmt":
			reason = g.inspectDo(body, depth)
		}
		return reason == ""
	})
	return reason
}

func (g *Gate) inspectDo(body map[string]any, depth int) string {
	if depth >= maxDepth {
		return "DO blocks nested too deeply to inspect"
	}
	var src, lang string
	args, _ := body["args"].([]any)
	for _, a := range args {
		def := child(a, "DefElem")
		switch str(def, "defname") {
		case "as":
			src = stringNode(def["arg"])
		case "language":
			lang = stringNode(def["arg"])
		}
	}
	if lang != "" && !strings.EqualFold(lang, "plpgsql") {
		return fmt.Sprintf("DO block in language %s cannot be inspected", lang)
	}
	return g.inspectPLpgSQL(src, depth+1)
}

// inspectPLpgSQL checks every SQL statement and expression of a PL/pgSQL
// block body.
func (g *Gate) inspectPLpgSQL(src string, depth int) string {
	fn := "CREATE FUNCTION pgpromote_inspect() RETURNS void LANGUAGE plpgsql AS " + dollarQuote(src)
	out, err := pgquery.ParsePlPgSqlToJSON(fn)
	if err != nil {
		return "DO block body does not parse: " + err.Error()
	}
	var tree any
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		return "DO block body does not parse: " + err.Error()
	}

	var reason string
	walk(tree, func(name string, body map[string]any) bool {
		if reason != "" {
			return false
		}
		switch name {
		case "PLpgSQL_stmt_commit", "PLpgSQL_stmt_rollback":
			reason = "transaction control inside a DO block"
		case "PLpgSQL_stmt_dynexecute", "PLpgSQL_stmt_dynfors":
			reason = g.inspectDynamic(exprQuery(body["query"]), depth)
		case "PLpgSQL_stmt_open":
			reason = g.inspectDynamic(exprQuery(body["dynquery"]), depth)
		case "PLpgSQL_expr":
			reason = g.inspectEmbedded(str(body, "query"), depth)
		}
		return reason == ""
	})
	return reason
}

func exprQuery(v any) string {
	return str(child(v, "PLpgSQL_expr"), "query")
}

// inspectEmbedded checks SQL held in a PL/pgSQL expression. Expressions
// that are not whole statements are parsed as a SELECT list.
func (g *Gate) inspectEmbedded(query string, depth int) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}
	stmts, err := parse(query)
	if err != nil {
		if stmts, err = parse("SELECT " + query); err != nil {
			return ""
		}
	}
	for _, st := range stmts {
		if transactionKind(st.node) != "" {
			return "transaction control inside a DO block"
		}
		if r := g.inspect(st.node, depth); r != "" {
			return r
		}
	}
	return ""
}

// inspectDynamic checks the string constants of an EXECUTE expression as
// SQL in their own right. Fragments that do not parse are judged by their
// leading words.
func (g *Gate) inspectDynamic(query string, depth int) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}
	stmts, err := parse("SELECT " + query)
	if err != nil {
		return ""
	}
	var literals []string
	for _, st := range stmts {
		walk(st.node, func(name string, body map[string]any) bool {
			if name == "A_Const" {
				if s := str(child(body, "sval"), "sval"); s != "" {
					literals = append(literals, s)
				}
				return false
			}
			return true
		})
	}

	for _, lit := range literals {
		inner, err := parse(lit)
		if err != nil {
			if r := g.leadingVerb(lit); r != "" {
				return r
			}
			continue
		}
		for _, st := range inner {
			if r := g.inspect(st.node, depth+1); r != "" {
				return r
			}
		}
	}
	return ""
}

func (g *Gate) leadingVerb(fragment string) string {
	words := strings.Fields(strings.ToUpper(fragment))
	if len(words) == 0 {
		return ""
	}
	switch words[0] {
	case "DELETE":
		return "DELETE FROM"
	case "TRUNCATE":
		return "TRUNCATE"
	case "DROP":
		if len(words) < 2 {
			return ""
		}
		switch words[1] {
		case "DATABASE":
			return "DROP DATABASE"
		case "TABLE":
			if g.policy.AllowDropTableIfExists && len(words) > 3 && words[2] == "IF" && words[3] == "EXISTS" {
				return ""
			}
			return "DROP TABLE"
		}
	}
	return ""
}
