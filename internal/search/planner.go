package search

import (
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// minTermLen is the shortest bare term (after stripping quotes and
// field prefixes) the planner will keep; shorter terms are dropped
// silently rather than rejected, matching spec.md §4.4's "terms of
// length >=2" rule.
const minTermLen = 2

var ftsOperators = map[string]bool{"AND": true, "OR": true, "NOT": true}

// allowedFields are the FTS5 column filters the lexical planner will
// pass through; anything else is treated as a literal term.
var allowedFields = map[string]bool{"subject": true, "body": true}

// PlannedQuery is the compiled form of a free-text expression.
type PlannedQuery struct {
	// MatchExpression is empty when the input produced no usable
	// terms (e.g. only stop-short tokens); callers should skip the
	// FTS join entirely in that case rather than running MATCH '' .
	MatchExpression string
}

// PlanText compiles a free-text search expression into an FTS5 MATCH
// expression (internal/store/migrations/sqlite/000002_fts.up.sql's
// messages_fts virtual table). It supports quoted phrases, subject:/
// body: field prefixes, and uppercase AND/OR/NOT boolean operators —
// the same set FTS5 recognizes natively, so the planner's job is
// tokenizing, validating, and filtering short terms, not reimplementing
// boolean evaluation.
//
// A syntactically malformed expression (dangling or adjacent
// operators) returns an *errs.Error with code InvalidArgument; per
// spec.md §4.3's propagation policy, UI-facing callers should catch
// that and substitute an empty result set, while programmatic callers
// propagate it unchanged.
func PlanText(text string) (*PlannedQuery, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}

	var kept []string
	for _, tok := range tokens {
		if ftsOperators[tok] {
			kept = append(kept, tok)
			continue
		}
		field, body, phrase := splitField(tok)
		bare := strings.Trim(body, `"`)
		if len([]rune(bare)) < minTermLen {
			continue
		}
		if phrase {
			kept = append(kept, field+`"`+bare+`"`)
		} else {
			kept = append(kept, field+bare)
		}
	}

	if err := validateOperatorPlacement(kept); err != nil {
		return nil, err
	}

	return &PlannedQuery{MatchExpression: strings.Join(kept, " ")}, nil
}

// splitField separates a leading "subject:"/"body:" prefix (if any)
// from the remainder of a token, and reports whether the remainder is
// a quoted phrase. Unrecognized prefixes are left as part of the term
// body rather than rejected — they simply won't narrow the match.
func splitField(tok string) (field, body string, phrase bool) {
	body = tok
	if idx := strings.IndexByte(tok, ':'); idx > 0 && !strings.HasPrefix(tok, `"`) {
		name := tok[:idx]
		if allowedFields[name] {
			field = name + ":"
			body = tok[idx+1:]
		}
	}
	phrase = strings.HasPrefix(body, `"`)
	return field, body, phrase
}

// tokenize splits raw input on whitespace while keeping double-quoted
// phrases (which may contain spaces) as single tokens.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var buf strings.Builder
	inQuote := false

	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			buf.WriteRune(r)
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()

	if inQuote {
		return nil, errs.New(errs.InvalidArgument, "search: unterminated quoted phrase")
	}
	return tokens, nil
}

// validateOperatorPlacement rejects expressions where a boolean
// operator opens, closes, or directly follows another operator — FTS5
// itself would reject these as a syntax error, so the planner catches
// them up front and reports a structured error instead of letting the
// raw SQLite error leak through.
func validateOperatorPlacement(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if ftsOperators[tokens[0]] || ftsOperators[tokens[len(tokens)-1]] {
		return errs.New(errs.InvalidArgument, "search: query cannot start or end with a boolean operator")
	}
	for i := 1; i < len(tokens); i++ {
		if ftsOperators[tokens[i]] && ftsOperators[tokens[i-1]] {
			return errs.New(errs.InvalidArgument, "search: adjacent boolean operators")
		}
	}
	return nil
}
