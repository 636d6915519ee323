// internal/form/renderer.go
//
// Ponyracer – Forms subsystem: HTML renderer.
//
// Context
//   Render turns a Definition plus the live state of its Form into Bootstrap
//   markup.  The markup is the UI contract of the form engine:
//
//   •  an invalid field (dirty and failing) gets `is-invalid` on its input
//      and `text-danger` on its label, followed by
//      <div class="invalid-feedback"> holding the message;
//   •  a valid or untouched field carries none of these;
//   •  the submit button is `disabled` exactly when the form is not valid.
//
//   Each field is wrapped in <div id="field-{name}"> so the field endpoint
//   can swap a single fragment after each keystroke.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"html"
	"html/template"
	"strings"
)

// RenderOptions bundles request-specific parts of the markup.
type RenderOptions struct {
	Action   string // POST target, e.g. “/login”.
	FieldURL string // Revalidation endpoint; empty disables live checks.
	ViewID   string // Mounted view identifier, echoed as a hidden input.
	Token    string // CSRF token.
}

// ViewField is the hidden input carrying the mounted view identifier.
const ViewField = "view"

// Render returns the complete <form> markup.
func Render(d *Definition, f *Form, opts RenderOptions) (template.HTML, error) {
	var b strings.Builder

	fmt.Fprintf(&b, `<form method="post" action="%s" novalidate`, html.EscapeString(opts.Action))
	if opts.FieldURL != "" {
		fmt.Fprintf(&b, ` data-field-url="%s"`, html.EscapeString(opts.FieldURL))
	}
	b.WriteString(">\n")
	fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`+"\n", TokenField, html.EscapeString(opts.Token))
	fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`+"\n", ViewField, html.EscapeString(opts.ViewID))

	for _, fd := range d.Fields {
		st, ok := f.Field(fd.Name)
		if !ok {
			return "", fmt.Errorf("Render: form %s has no field %q", d.ID, fd.Name)
		}
		writeField(&b, fd, st)
	}

	b.WriteString(SubmitButton(d, f.IsFormValid()))
	b.WriteString("\n</form>")
	return template.HTML(b.String()), nil
}

// RenderField returns the fragment for one field.
func RenderField(d *Definition, f *Form, name string) (template.HTML, error) {
	fd, ok := d.Field(name)
	if !ok {
		return "", fmt.Errorf("RenderField: %w %q", ErrUnknownField, name)
	}
	st, ok := f.Field(name)
	if !ok {
		return "", fmt.Errorf("RenderField: %w %q", ErrUnknownField, name)
	}
	var b strings.Builder
	writeField(&b, fd, st)
	return template.HTML(b.String()), nil
}

// SubmitButton returns the button markup for the given validity.
func SubmitButton(d *Definition, valid bool) string {
	disabled := ""
	if !valid {
		disabled = " disabled"
	}
	return `<button type="submit" class="btn btn-primary"` + disabled + `>` + html.EscapeString(d.Submit) + `</button>`
}

// writeField emits label, input, and (when invalid) feedback for one field.
func writeField(b *strings.Builder, fd FieldDef, st FieldState) {
	id := html.EscapeString(fd.Name) + "-input"

	labelClass, inputClass := "form-label", "form-control"
	if st.IsInvalid {
		labelClass += " text-danger"
		inputClass += " is-invalid"
	}

	fmt.Fprintf(b, `<div class="mb-3" id="field-%s">`+"\n", html.EscapeString(fd.Name))
	fmt.Fprintf(b, `<label for="%s" class="%s">%s</label>`+"\n", id, labelClass, html.EscapeString(fd.Label))
	fmt.Fprintf(b, `<input id="%s" name="%s" type="%s" class="%s" value="%s"`,
		id, html.EscapeString(fd.Name), fd.Type, inputClass, html.EscapeString(stringOf(st.Value)))
	if fd.Placeholder != "" {
		fmt.Fprintf(b, ` placeholder="%s"`, html.EscapeString(fd.Placeholder))
	}
	if fd.Autocomplete != "" {
		fmt.Fprintf(b, ` autocomplete="%s"`, html.EscapeString(fd.Autocomplete))
	}
	b.WriteString(">\n")
	if st.IsInvalid {
		fmt.Fprintf(b, `<div class="invalid-feedback">%s</div>`+"\n", html.EscapeString(st.Error))
	}
	b.WriteString("</div>\n")
}
