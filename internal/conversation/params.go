package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedSearchParameters indicates the dialog reply's embedded search
// payload could not be normalized into JSON.
var ErrMalformedSearchParameters = errors.New("conversation: malformed search parameters")

// SearchParameters is the structured query extracted from a dialog reply.
// Keys beyond "page" are forwarded to the movie search verbatim.
type SearchParameters map[string]any

// Page returns the page token ("new", "repeat", or a numeric token rendered
// as a string). Returns "" when absent.
func (p SearchParameters) Page() string {
	v, ok := p["page"]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Quote-coerces bare or single-quoted keys so the templated fragment becomes
// strict JSON: `title:` / `'title':` -> `"title": `.
var keyPattern = regexp.MustCompile(`(['"])?([a-zA-Z0-9_]+)(['"])?:`)

// ParseSearchParameters extracts search parameters from the second line of a
// dialog reply. The dialog engine emits the payload wrapped in one pair of
// outer delimiters, with loosely-quoted keys and single-quoted values.
func ParseSearchParameters(replyLines []string) (SearchParameters, error) {
	if len(replyLines) < 2 {
		return nil, fmt.Errorf("%w: reply has %d lines, need 2", ErrMalformedSearchParameters, len(replyLines))
	}

	raw := strings.ToLower(replyLines[1])
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: payload %q too short", ErrMalformedSearchParameters, raw)
	}

	// Strip exactly one leading and one trailing delimiter character.
	inner := raw[1 : len(raw)-1]
	normalized := "{" + keyPattern.ReplaceAllString(inner, `"$2": `) + "}"
	normalized = strings.ReplaceAll(normalized, "'", `"`)

	var params SearchParameters
	if err := json.Unmarshal([]byte(normalized), &params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSearchParameters, err)
	}
	return params, nil
}
