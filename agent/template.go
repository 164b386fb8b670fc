package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrMissingStateKey is returned when an instruction references a state key
// the session does not have.
var ErrMissingStateKey = errors.New("missing state key")

// placeholder matches {key} and {key?}. Anything else in braces, such as
// JSON examples or operator documents, is not a placeholder.
var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(\?)?\}`)

// InjectState replaces placeholders in tmpl with values from state. Strings
// are inserted verbatim and everything else as JSON. Optional placeholders
// become empty when the key is absent.
func InjectState(tmpl string, state map[string]any) (string, error) {
	var missing error
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		key, optional := parts[1], parts[2] == "?"

		v, ok := state[key]
		if !ok {
			if !optional && missing == nil {
				missing = fmt.Errorf("%w: %s", ErrMissingStateKey, key)
			}
			return ""
		}
		return render(v)
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
