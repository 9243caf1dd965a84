package dsql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aep/docsql/api"
)

type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Command is one parsed statement.
type Command struct {
	Kind       Kind
	Collection string
	Filter     *api.Filter
	Payload    map[string]any
	TargetID   string
}

type SyntaxError struct {
	Statement string
}

func (e *SyntaxError) Error() string {
	return "Syntax error: unrecognized statement. Supported forms: " +
		"SELECT * FROM <collection> [WHERE <field> <op> <value>]; " +
		"INSERT INTO <collection> JSON {...}; " +
		"UPDATE <collection> SET JSON {...} WHERE id = <id>; " +
		"DELETE FROM <collection> WHERE id = <id>"
}

type PayloadError struct {
	Kind Kind
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("Invalid JSON in %s statement: %v", strings.ToUpper(string(e.Kind)), e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

var (
	selectPattern = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM\s+([A-Za-z0-9_/-]+)(?:\s+WHERE\s+([A-Za-z0-9_.]+)\s*(==|!=|>=|<=|=|>|<|array-contains)\s*(.+))?$`)
	insertPattern = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+([A-Za-z0-9_/-]+)\s+JSON\s+(\{.*\})$`)
	updatePattern = regexp.MustCompile(`(?is)^UPDATE\s+([A-Za-z0-9_/-]+)\s+SET\s+JSON\s+(\{.*\})\s+WHERE\s+id\s*=\s*(\S+)$`)
	deletePattern = regexp.MustCompile(`(?i)^DELETE\s+FROM\s+([A-Za-z0-9_/-]+)\s+WHERE\s+id\s*=\s*(\S+)$`)
)

type matcher struct {
	pattern *regexp.Regexp
	build   func(m []string) (*Command, error)
}

// tried in order, first match wins
var matchers = []matcher{
	{selectPattern, buildSelect},
	{insertPattern, buildInsert},
	{updatePattern, buildUpdate},
	{deletePattern, buildDelete},
}

func Parse(statement string) (*Command, error) {
	s := strings.TrimSpace(statement)
	for _, m := range matchers {
		if sub := m.pattern.FindStringSubmatch(s); sub != nil {
			return m.build(sub)
		}
	}
	return nil, &SyntaxError{Statement: s}
}

func buildSelect(m []string) (*Command, error) {
	cmd := &Command{Kind: KindSelect, Collection: m[1]}
	if m[2] == "" {
		return cmd, nil
	}
	op, err := api.ParseOp(m[3])
	if err != nil {
		return nil, &SyntaxError{Statement: m[0]}
	}
	cmd.Filter = &api.Filter{
		Key:   m[2],
		Op:    op,
		Value: Coerce(strings.TrimSpace(m[4])),
	}
	return cmd, nil
}

func buildInsert(m []string) (*Command, error) {
	payload, err := parsePayload(KindInsert, m[2])
	if err != nil {
		return nil, err
	}
	return &Command{Kind: KindInsert, Collection: m[1], Payload: payload}, nil
}

func buildUpdate(m []string) (*Command, error) {
	payload, err := parsePayload(KindUpdate, m[2])
	if err != nil {
		return nil, err
	}
	return &Command{
		Kind:       KindUpdate,
		Collection: m[1],
		Payload:    payload,
		TargetID:   stripQuotes(m[3]),
	}, nil
}

func buildDelete(m []string) (*Command, error) {
	return &Command{Kind: KindDelete, Collection: m[1], TargetID: stripQuotes(m[2])}, nil
}

func parsePayload(kind Kind, body string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, &PayloadError{Kind: kind, Err: err}
	}
	return payload, nil
}
