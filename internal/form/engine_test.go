// internal/form/engine_test.go
//
// Unit-tests for the rule registry and form engine.
//
// Run: go test ./internal/form -v

package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustRules(t *testing.T, s string) []RuleRef {
	t.Helper()
	refs, err := ParseRules(s)
	if err != nil {
		t.Fatalf("ParseRules(%q): %v", s, err)
	}
	return refs
}

func mustForm(t *testing.T, reg *Registry, specs ...FieldSpec) *Form {
	t.Helper()
	f, err := NewForm(reg, specs)
	if err != nil {
		t.Fatalf("NewForm: %v", err)
	}
	return f
}

func state(t *testing.T, f *Form, name string) FieldState {
	t.Helper()
	st, ok := f.Field(name)
	if !ok {
		t.Fatalf("field %q missing", name)
	}
	return st
}

func set(t *testing.T, f *Form, name string, v any) {
	t.Helper()
	if err := f.SetFieldValue(name, v); err != nil {
		t.Fatalf("SetFieldValue(%q): %v", name, err)
	}
}

func TestBuiltinRules(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		rule   string
		value  any
		params []any
		want   bool
	}{
		{RuleRequired, "", nil, false},
		{RuleRequired, nil, nil, false},
		{RuleRequired, "x", nil, true},
		{RuleRequired, 0, nil, true},
		{RuleMin, "ab", []any{"3"}, false},
		{RuleMin, "abc", []any{"3"}, true},
		{RuleMin, "", []any{"3"}, false},
		{RuleMin, "héé", []any{"3"}, true},
		{RuleMinValue, 1899, []any{"1900"}, false},
		{RuleMinValue, 1900, []any{"1900"}, true},
		{RuleMinValue, "1986", []any{"1900"}, true},
		{RuleMinValue, "abc", []any{"1900"}, false},
		{RuleMinValue, "", []any{"1900"}, false},
		{RuleConfirmed, "secret", []any{"secret"}, true},
		{RuleConfirmed, "secret", []any{"other"}, false},
		{RuleConfirmed, 1986, []any{"1986"}, false},
	}
	for _, tc := range cases {
		rule, ok := reg.Lookup(tc.rule)
		if !ok {
			t.Fatalf("rule %q not registered", tc.rule)
		}
		if got := rule.Predicate(tc.value, tc.params); got != tc.want {
			t.Errorf("%s(%#v, %v) = %v, want %v", tc.rule, tc.value, tc.params, got, tc.want)
		}
	}
}

func TestMessages(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		rule, field string
		params      []any
		want        string
	}{
		{RuleRequired, "login", nil, "The login is required."},
		{RuleMin, "login", []any{"3"}, "The login must be at least 3 characters."},
		{RuleMinValue, "birthYear", []any{"1900"}, "The birthYear must be 1900 or more."},
		{RuleConfirmed, "confirmation", []any{"x"}, "The confirmation does not match."},
		{"no_such_rule", "login", nil, "The login is not valid."},
	}
	for _, tc := range cases {
		if got := reg.Message(tc.rule, tc.field, tc.params); got != tc.want {
			t.Errorf("Message(%s) = %q, want %q", tc.rule, got, tc.want)
		}
	}
}

func TestConfigureMessagesAndNamedPlaceholders(t *testing.T) {
	reg := NewRegistry()
	reg.Configure(Options{
		ValidateOnInput: true,
		Messages:        map[string]string{RuleMin: "{field} needs {min}+ chars"},
	})
	if got := reg.Message(RuleMin, "login", []any{"3"}); got != "login needs 3+ chars" {
		t.Fatalf("custom message = %q", got)
	}
	if got := reg.Message(RuleRequired, "login", nil); got != "The login is required." {
		t.Fatalf("default message lost: %q", got)
	}
}

func TestRegisterReplacesRule(t *testing.T) {
	reg := NewRegistry()
	even := func(v any, _ []any) bool {
		n, ok := numberOf(v)
		return ok && int(n)%2 == 0
	}
	reg.Register("even", even)
	reg.Register("even", even)

	f := mustForm(t, reg, FieldSpec{Name: "n", Initial: 2, Rules: mustRules(t, "even")})
	if !f.IsFormValid() {
		t.Fatalf("2 should be even")
	}
	set(t, f, "n", 3)
	if got := state(t, f, "n").Error; got != "The n is not valid." {
		t.Fatalf("error = %q", got)
	}
}

func TestParseRules(t *testing.T) {
	got := mustRules(t, "required| min:3 |confirmed:@password")
	want := []RuleRef{
		{Name: "required"},
		{Name: "min", Params: []string{"3"}},
		{Name: "confirmed", Params: []string{"@password"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseRules mismatch (-want +got):\n%s", diff)
	}
	if _, err := ParseRules("min:"); err == nil {
		t.Fatalf("expected error for empty parameter")
	}
	if _, err := ParseRules(":3"); err == nil {
		t.Fatalf("expected error for missing name")
	}
}

func TestNewFormRejectsBadSchema(t *testing.T) {
	reg := NewRegistry()
	cases := map[string][]FieldSpec{
		"duplicate":    {{Name: "a"}, {Name: "a"}},
		"empty name":   {{Name: ""}},
		"unknown rule": {{Name: "a", Rules: []RuleRef{{Name: "nope"}}}},
		"unknown ref":  {{Name: "a", Rules: []RuleRef{{Name: RuleConfirmed, Params: []string{"@b"}}}}},
		"no fields":    nil,
	}
	for name, specs := range cases {
		if _, err := NewForm(reg, specs); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestErrorShownOnlyWhenDirty(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: "", Rules: mustRules(t, "required")},
	)

	if st := state(t, f, "login"); st.IsInvalid || st.Dirty {
		t.Fatalf("untouched field shows error: %+v", st)
	}

	set(t, f, "login", "cedric")
	set(t, f, "login", "")
	st := state(t, f, "login")
	want := FieldState{Name: "login", Value: "", Dirty: true, Error: "The login is required.", IsInvalid: true}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	set(t, f, "login", "cedric")
	st = state(t, f, "login")
	if st.IsInvalid || st.Error != "" {
		t.Fatalf("error not cleared: %+v", st)
	}
}

func TestFirstFailingRuleWins(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: "x", Rules: mustRules(t, "required|min:3")},
	)
	set(t, f, "login", "")
	if got := state(t, f, "login").Error; got != "The login is required." {
		t.Fatalf("error = %q", got)
	}
	set(t, f, "login", "ab")
	if got := state(t, f, "login").Error; got != "The login must be at least 3 characters." {
		t.Fatalf("error = %q", got)
	}
}

func TestIsFormValidIgnoresDirty(t *testing.T) {
	reg := NewRegistry()
	valid := mustForm(t, reg,
		FieldSpec{Name: "birthYear", Initial: 2008, Rules: mustRules(t, "required|min_value:1900")},
	)
	if !valid.IsFormValid() {
		t.Fatalf("untouched valid form should be submittable")
	}

	invalid := mustForm(t, reg,
		FieldSpec{Name: "login", Initial: "", Rules: mustRules(t, "required")},
	)
	if invalid.IsFormValid() {
		t.Fatalf("untouched invalid form should not be submittable")
	}
	if st := state(t, invalid, "login"); st.IsInvalid {
		t.Fatalf("untouched field must not display error")
	}
}

func TestSetSameValueTwiceIsIdempotent(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: "", Rules: mustRules(t, "required")},
	)
	set(t, f, "login", "cedric")
	first := state(t, f, "login")
	set(t, f, "login", "cedric")
	if diff := cmp.Diff(first, state(t, f, "login")); diff != "" {
		t.Fatalf("state changed (-first +second):\n%s", diff)
	}
}

func TestSettingInitialValueDoesNotDirty(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: "", Rules: mustRules(t, "required")},
	)
	set(t, f, "login", "")
	if st := state(t, f, "login"); st.Dirty || st.IsInvalid {
		t.Fatalf("unchanged value marked dirty: %+v", st)
	}
}

func TestConfirmedTracksTarget(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "password", Initial: "", Rules: mustRules(t, "required")},
		FieldSpec{Name: "confirmation", Initial: "", Rules: mustRules(t, "required|confirmed:@password")},
	)
	set(t, f, "password", "secret")
	set(t, f, "confirmation", "secret")
	if st := state(t, f, "confirmation"); st.IsInvalid {
		t.Fatalf("matching confirmation invalid: %+v", st)
	}

	set(t, f, "password", "changed")
	st := state(t, f, "confirmation")
	if !st.IsInvalid || st.Error != "The confirmation does not match." {
		t.Fatalf("stale confirmation state: %+v", st)
	}
	if f.IsFormValid() {
		t.Fatalf("form valid with mismatched confirmation")
	}
}

func TestBlurMode(t *testing.T) {
	reg := NewRegistry()
	reg.Configure(Options{ValidateOnInput: false})
	f := mustForm(t, reg,
		FieldSpec{Name: "login", Initial: "x", Rules: mustRules(t, "required")},
	)

	set(t, f, "login", "")
	if st := state(t, f, "login"); st.IsInvalid {
		t.Fatalf("error shown before blur: %+v", st)
	}
	if f.IsFormValid() {
		t.Fatalf("validity must not wait for blur")
	}

	if err := f.Blur("login"); err != nil {
		t.Fatalf("Blur: %v", err)
	}
	if st := state(t, f, "login"); !st.IsInvalid {
		t.Fatalf("error hidden after blur: %+v", st)
	}

	// A passing value clears the error without waiting for blur.
	set(t, f, "login", "cedric")
	if st := state(t, f, "login"); st.IsInvalid || st.Error != "" {
		t.Fatalf("stale error: %+v", st)
	}
}

func TestSubmitGate(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: "", Rules: mustRules(t, "required")},
		FieldSpec{Name: "password", Initial: "", Rules: mustRules(t, "required")},
	)

	called := false
	if f.Submit(func(Values) { called = true }) || called {
		t.Fatalf("handler ran on invalid form")
	}

	set(t, f, "login", "cedric")
	set(t, f, "password", "password")

	var got Values
	if !f.Submit(func(v Values) { got = v }) {
		t.Fatalf("handler skipped on valid form")
	}
	want := Values{"login": "cedric", "password": "password"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldsOrderAndReset(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "login", Initial: ""},
		FieldSpec{Name: "password", Initial: ""},
		FieldSpec{Name: "birthYear", Initial: 2008},
	)
	set(t, f, "birthYear", 1986)

	var names []string
	for _, st := range f.Fields() {
		names = append(names, st.Name)
	}
	if diff := cmp.Diff([]string{"login", "password", "birthYear"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	f.Reset()
	st := state(t, f, "birthYear")
	if st.Value != 2008 || st.Dirty {
		t.Fatalf("reset failed: %+v", st)
	}
}

func TestUnknownField(t *testing.T) {
	f := mustForm(t, NewRegistry(), FieldSpec{Name: "login"})
	if err := f.SetFieldValue("nope", "x"); err == nil {
		t.Fatalf("expected ErrUnknownField")
	}
	if _, ok := f.Field("nope"); ok {
		t.Fatalf("unexpected field")
	}
}

func TestValuesHelpers(t *testing.T) {
	v := Values{"login": "cedric", "year": 1986, "text": "1900", "bad": "x"}
	if v.String("year") != "1986" || v.String("login") != "cedric" || v.String("missing") != "" {
		t.Fatalf("String helper wrong")
	}
	if n, ok := v.Int("text"); !ok || n != 1900 {
		t.Fatalf("Int(text) = %d, %v", n, ok)
	}
	if _, ok := v.Int("bad"); ok {
		t.Fatalf("Int(bad) should fail")
	}
}

func TestBlurModeDependentsWaitForBlur(t *testing.T) {
	reg := NewRegistry()
	reg.Configure(Options{ValidateOnInput: false})
	f := mustForm(t, reg,
		FieldSpec{Name: "password", Initial: "", Rules: mustRules(t, "required")},
		FieldSpec{Name: "confirmation", Initial: "", Rules: mustRules(t, "required|confirmed:@password")},
	)
	set(t, f, "password", "secret")
	set(t, f, "confirmation", "secret")
	if err := f.Blur("confirmation"); err != nil {
		t.Fatalf("Blur: %v", err)
	}

	set(t, f, "password", "changed")
	if st := state(t, f, "confirmation"); st.IsInvalid || st.Error != "" {
		t.Fatalf("dependent error shown before blur: %+v", st)
	}
	if f.IsFormValid() {
		t.Fatalf("form valid with mismatched confirmation")
	}

	if err := f.Blur("confirmation"); err != nil {
		t.Fatalf("Blur: %v", err)
	}
	if st := state(t, f, "confirmation"); !st.IsInvalid {
		t.Fatalf("error hidden after blur: %+v", st)
	}

	// Matching again clears the dependent without a blur.
	set(t, f, "password", "secret")
	if st := state(t, f, "confirmation"); st.Error != "" {
		t.Fatalf("stale dependent error: %+v", st)
	}
}

func TestUncomparableValuesDoNotPanic(t *testing.T) {
	f := mustForm(t, NewRegistry(),
		FieldSpec{Name: "tags", Initial: []any{"a"}},
		FieldSpec{Name: "again", Initial: []any{"a"}, Rules: mustRules(t, "confirmed:@tags")},
	)
	set(t, f, "again", []any{"a"})
	set(t, f, "tags", []any{"a"})
	if st := state(t, f, "tags"); st.Dirty {
		t.Fatalf("equal slice marked dirty: %+v", st)
	}
	set(t, f, "tags", []any{"b"})
	st := state(t, f, "again")
	if st.Error != "The again does not match." {
		t.Fatalf("confirmed over slices: %+v", st)
	}
	if !sameValue(map[string]any{"k": 1}, map[string]any{"k": 1}) || sameValue([]any{1}, "1") {
		t.Fatalf("sameValue mismatch")
	}
}
