// internal/form/engine.go
//
// Ponyracer – Forms subsystem: form engine.
//
// Context
//   A Form tracks the live state of one mounted form: each field's value,
//   dirty flag, and current error.  Every mutator revalidates synchronously,
//   so readers never observe a value and an error that disagree.
//
// Workflow
//   •  NewForm checks the schema against the Registry: unique names, known
//      rules, and “@field” references that exist.
//   •  SetFieldValue stores the value, marks the field dirty once it has
//      moved away from its initial value, and revalidates the field plus
//      any field whose rules reference it.
//   •  Field reports {Value, Dirty, Error, IsInvalid}.  IsInvalid needs both
//      Dirty and an Error, so untouched fields never show red text.
//   •  IsFormValid ignores dirty flags; it gates the submit button.
//   •  Submit calls the handler only when IsFormValid holds at call time.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownField is returned for operations on a field the form lacks.
var ErrUnknownField = errors.New("unknown form field")

// FieldSpec declares one field of a form.
type FieldSpec struct {
	Name    string
	Initial any
	Rules   []RuleRef
}

// FieldState is a read-only snapshot of one field.
type FieldState struct {
	Name      string
	Value     any
	Dirty     bool
	Error     string
	IsInvalid bool
}

// Values maps field names to their current values.
type Values map[string]any

// String returns the value of name formatted as input text.
func (v Values) String(name string) string { return stringOf(v[name]) }

// Int returns the value of name as an int, parsing strings when needed.
func (v Values) Int(name string) (int, bool) {
	f, ok := numberOf(v[name])
	if !ok {
		return 0, false
	}
	return int(f), true
}

type field struct {
	spec      FieldSpec
	value     any
	dirty     bool
	evaluated bool // validated at least once by an interaction
	err       string
}

// Form is safe for concurrent use.
type Form struct {
	mu     sync.Mutex
	reg    *Registry
	order  []string
	fields map[string]*field
	deps   map[string][]string // field → fields whose rules reference it
}

// NewForm builds a Form from an ordered schema.
func NewForm(reg *Registry, specs []FieldSpec) (*Form, error) {
	if reg == nil {
		return nil, errors.New("form: nil registry")
	}
	if len(specs) == 0 {
		return nil, errors.New("form: no fields")
	}

	f := &Form{
		reg:    reg,
		fields: make(map[string]*field, len(specs)),
		deps:   make(map[string][]string),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, errors.New("form: field missing name")
		}
		if _, dup := f.fields[s.Name]; dup {
			return nil, fmt.Errorf("form: duplicate field %q", s.Name)
		}
		f.order = append(f.order, s.Name)
		f.fields[s.Name] = &field{spec: s, value: s.Initial}
	}

	for _, name := range f.order {
		for _, ref := range f.fields[name].spec.Rules {
			if _, ok := reg.Lookup(ref.Name); !ok {
				return nil, fmt.Errorf("form: field %q: %w %q", name, ErrUnknownRule, ref.Name)
			}
			for _, p := range ref.Params {
				target, isRef := strings.CutPrefix(p, "@")
				if !isRef {
					continue
				}
				if _, ok := f.fields[target]; !ok {
					return nil, fmt.Errorf("form: field %q: rule %s references unknown field %q", name, ref, target)
				}
				f.deps[target] = append(f.deps[target], name)
			}
		}
	}
	return f, nil
}

// SetFieldValue updates name and revalidates according to the registry's
// trigger.  In blur mode a failing value keeps its error hidden until Blur,
// but a passing value clears a previous error immediately.  Fields that
// reference name follow the same trigger.
func (f *Form) SetFieldValue(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.fields[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	fl.value = value
	if !sameValue(value, fl.spec.Initial) {
		fl.dirty = true
	}

	f.onInput(fl)
	for _, dep := range f.deps[name] {
		if d := f.fields[dep]; d.evaluated {
			f.onInput(d)
		}
	}
	return nil
}

// onInput applies the input trigger to fl.  Without input validation only a
// pass is reported; failures wait for Blur.
func (f *Form) onInput(fl *field) {
	if f.reg.ValidateOnInput() {
		f.revalidate(fl)
	} else if f.check(fl) == "" {
		fl.err = ""
	}
}

// Blur revalidates name, the trigger used when input validation is off.
func (f *Form) Blur(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.fields[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	f.revalidate(fl)
	return nil
}

// Field returns the state of name.
func (f *Form) Field(name string) (FieldState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.fields[name]
	if !ok {
		return FieldState{}, false
	}
	return fl.state(), true
}

// Fields returns every field state in declaration order.
func (f *Form) Fields() []FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]FieldState, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.fields[name].state())
	}
	return out
}

// IsFormValid reports whether every field passes all its rules, dirty or not.
func (f *Form) IsFormValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid()
}

// Values returns a snapshot of the current values.
func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values()
}

// Submit revalidates every field and, when the form is valid, calls handler
// with the current values.  It reports whether handler ran.
func (f *Form) Submit(handler func(Values)) bool {
	f.mu.Lock()
	for _, name := range f.order {
		f.revalidate(f.fields[name])
	}
	ok := f.valid()
	vals := f.values()
	f.mu.Unlock()

	if !ok {
		return false
	}
	handler(vals)
	return true
}

// Reset restores initial values and forgets all interaction.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.fields {
		fl.value = fl.spec.Initial
		fl.dirty = false
		fl.evaluated = false
		fl.err = ""
	}
}

// -----------------------------------------------------------------------------
// Internals (caller holds f.mu)
// -----------------------------------------------------------------------------

func (fl *field) state() FieldState {
	return FieldState{
		Name:      fl.spec.Name,
		Value:     fl.value,
		Dirty:     fl.dirty,
		Error:     fl.err,
		IsInvalid: fl.dirty && fl.err != "",
	}
}

func (f *Form) revalidate(fl *field) {
	fl.evaluated = true
	fl.err = f.check(fl)
}

// check runs the rules of fl in declaration order and returns the message of
// the first failure, or "".
func (f *Form) check(fl *field) string {
	for _, ref := range fl.spec.Rules {
		params := f.resolve(ref.Params)
		rule, ok := f.reg.Lookup(ref.Name)
		if !ok {
			return f.reg.Message(fallbackMessageKey, fl.spec.Name, params)
		}
		if !rule.Predicate(fl.value, params) {
			return f.reg.Message(ref.Name, fl.spec.Name, params)
		}
	}
	return ""
}

func (f *Form) resolve(raw []string) []any {
	if len(raw) == 0 {
		return nil
	}
	out := make([]any, len(raw))
	for i, p := range raw {
		if target, ok := strings.CutPrefix(p, "@"); ok {
			out[i] = f.fields[target].value
			continue
		}
		out[i] = p
	}
	return out
}

func (f *Form) valid() bool {
	for _, name := range f.order {
		if f.check(f.fields[name]) != "" {
			return false
		}
	}
	return true
}

func (f *Form) values() Values {
	out := make(Values, len(f.fields))
	for name, fl := range f.fields {
		out[name] = fl.value
	}
	return out
}
