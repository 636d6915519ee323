// internal/form/rules.go
//
// Ponyracer – Forms subsystem: field rule registry.
//
// Context
//   Every form field lists the rules it must satisfy, e.g. “required|min:3”.
//   A Registry maps each rule name to a typed predicate and owns the message
//   table used to explain failures.  One Registry is built at startup and
//   handed to every Form by reference.  Nothing here is package-global.
//
// Workflow
//   •  NewRegistry installs the built-in rules: required, min, min_value, and
//      confirmed.
//   •  Register adds or replaces a rule.  Configure sets the validation
//      trigger and message templates.
//   •  ParseRules turns the compact pipe syntax into []RuleRef.  Parameters
//      beginning with “@” name another field of the same form.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// Built-in rule names.
const (
	RuleRequired  = "required"
	RuleMin       = "min"
	RuleMinValue  = "min_value"
	RuleConfirmed = "confirmed"
)

// ErrUnknownRule is returned when a field references a rule the registry
// does not know.
var ErrUnknownRule = errors.New("unknown validation rule")

// Predicate reports whether value passes the rule.  params holds the rule
// parameters with field references already resolved to their values.
type Predicate func(value any, params []any) bool

// Rule is one named predicate.
type Rule struct {
	Name      string
	Predicate Predicate
}

// RuleRef is a rule applied to a field.  Params keep their raw text; a
// parameter of the form “@name” refers to the value of field name.
type RuleRef struct {
	Name   string
	Params []string
}

// String renders r back into pipe syntax, e.g. “min:3”.
func (r RuleRef) String() string {
	if len(r.Params) == 0 {
		return r.Name
	}
	return r.Name + ":" + strings.Join(r.Params, ",")
}

// Options configures a Registry.
type Options struct {
	// ValidateOnInput revalidates on every value change.  When false, errors
	// refresh only on Blur and Submit.
	ValidateOnInput bool
	// Messages overrides templates by rule name.  Missing names keep the
	// defaults.
	Messages map[string]string
}

// Registry holds rules and message templates.  It is safe for concurrent
// use; forms read it on every validation pass.
type Registry struct {
	mu              sync.RWMutex
	rules           map[string]Rule
	messages        map[string]string
	validateOnInput bool
}

// NewRegistry returns a Registry with the built-in rules, input-driven
// validation, and the default message table.
func NewRegistry() *Registry {
	r := &Registry{
		rules:           make(map[string]Rule),
		messages:        make(map[string]string, len(DefaultMessages)),
		validateOnInput: true,
	}
	for k, v := range DefaultMessages {
		r.messages[k] = v
	}
	r.Register(RuleRequired, required)
	r.Register(RuleMin, minLength)
	r.Register(RuleMinValue, minValue)
	r.Register(RuleConfirmed, confirmed)
	return r
}

// Register adds or replaces the rule called name.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	r.rules[name] = Rule{Name: name, Predicate: p}
	r.mu.Unlock()
}

// Configure applies opts.  Message templates are merged over the current
// table.
func (r *Registry) Configure(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validateOnInput = opts.ValidateOnInput
	for k, v := range opts.Messages {
		r.messages[k] = v
	}
}

// ValidateOnInput reports the configured trigger.
func (r *Registry) ValidateOnInput() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validateOnInput
}

// Lookup returns the rule called name.
func (r *Registry) Lookup(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

// Message renders the failure text for rule on field.
func (r *Registry) Message(rule, field string, params []any) string {
	r.mu.RLock()
	tpl, ok := r.messages[rule]
	if !ok {
		tpl = r.messages[fallbackMessageKey]
	}
	r.mu.RUnlock()
	return interpolate(tpl, field, paramNames[rule], params)
}

// ParseRules parses “required|min:3|confirmed:@password”.  Blank segments are
// ignored.
func ParseRules(s string) ([]RuleRef, error) {
	var out []RuleRef
	for _, seg := range strings.Split(s, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, rawParams, hasParams := strings.Cut(seg, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("rule %q: missing name", seg)
		}
		ref := RuleRef{Name: name}
		if hasParams {
			for _, p := range strings.Split(rawParams, ",") {
				p = strings.TrimSpace(p)
				if p == "" {
					return nil, fmt.Errorf("rule %q: empty parameter", seg)
				}
				ref.Params = append(ref.Params, p)
			}
		}
		out = append(out, ref)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Built-in predicates
// -----------------------------------------------------------------------------

func required(v any, _ []any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	default:
		return true
	}
}

func minLength(v any, params []any) bool {
	n, ok := intParam(params, 0)
	if !ok {
		return false
	}
	return utf8.RuneCountInString(stringOf(v)) >= n
}

func minValue(v any, params []any) bool {
	n, ok := numberOf(firstParam(params))
	if !ok {
		return false
	}
	f, ok := numberOf(v)
	if !ok {
		return false
	}
	return f >= n
}

func confirmed(v any, params []any) bool {
	if len(params) == 0 {
		return false
	}
	return sameValue(v, params[0])
}

// -----------------------------------------------------------------------------
// Value helpers
// -----------------------------------------------------------------------------

// sameValue compares two field values.  Values of uncomparable dynamic type
// (slices, maps) are compared deeply instead of panicking.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// stringOf formats v the way an input element would display it.
func stringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// numberOf converts v to float64.  Strings must parse cleanly.
func numberOf(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func firstParam(params []any) any {
	if len(params) == 0 {
		return nil
	}
	return params[0]
}

func intParam(params []any, i int) (int, bool) {
	if i >= len(params) {
		return 0, false
	}
	f, ok := numberOf(params[i])
	if !ok {
		return 0, false
	}
	return int(f), true
}
