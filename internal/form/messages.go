// internal/form/messages.go
//
// Ponyracer – Forms subsystem: message templates.
//
// Templates accept three placeholder forms:
//
//	{field}    the field name
//	{min}      a named rule parameter (names per rule in paramNames)
//	0:{min}    a positional parameter; the name is only a hint
//
//------------------------------------------------------------------------------

package form

import (
	"regexp"
	"strconv"
)

const fallbackMessageKey = "_default"

// DefaultMessages is the static message table.
var DefaultMessages = map[string]string{
	RuleRequired:       "The {field} is required.",
	RuleMinValue:       "The {field} must be 0:{min} or more.",
	RuleMin:            "The {field} must be at least 0:{min} characters.",
	RuleConfirmed:      "The {field} does not match.",
	fallbackMessageKey: "The {field} is not valid.",
}

// paramNames lists the parameter names of each built-in rule, in order.
var paramNames = map[string][]string{
	RuleMin:       {"min"},
	RuleMinValue:  {"min"},
	RuleConfirmed: {"target"},
}

var placeholderRE = regexp.MustCompile(`(\d+):\{(\w+)\}|\{(\w+)\}`)

// interpolate replaces placeholders in tpl.  Unresolvable placeholders are
// left untouched so template mistakes stay visible.
func interpolate(tpl, field string, names []string, params []any) string {
	return placeholderRE.ReplaceAllStringFunc(tpl, func(m string) string {
		sub := placeholderRE.FindStringSubmatch(m)
		if sub[1] != "" {
			i, err := strconv.Atoi(sub[1])
			if err != nil || i >= len(params) {
				return m
			}
			return stringOf(params[i])
		}
		name := sub[3]
		if name == "field" {
			return field
		}
		for i, n := range names {
			if n == name && i < len(params) {
				return stringOf(params[i])
			}
		}
		return m
	})
}
