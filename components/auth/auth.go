// components/auth/auth.go
//
// Ponyracer authentication component – login and registration pages.
//
// Context
//   Each form page is a mounted view (internal/viewstate): the form state and
//   its submission workflow live on the server between requests, keyed by
//   the view ID the page echoes in a hidden input.
//
//   Endpoints per form (login and register):
//
//      GET  /{form}                 render (reuse ?view= when still mounted)
//      POST /{form}                 bind all fields, then submit
//      POST /{form}/field           bind one field, return its fragment
//                                   (edits older than the last applied one
//                                   for that field are ignored)
//      POST /{form}/alert/dismiss   dismiss the failure alert
//
//   A successful submission records the user in the session, unmounts the
//   view, and redirects to the route the workflow navigated to (home).
//   An invalid form re-renders with 422; a failed call re-renders with the
//   danger alert and the fields still populated.
//
//------------------------------------------------------------------------------

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/ponyracer/internal/component"
	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/viewstate"
	"github.com/yanizio/ponyracer/internal/web"
	"github.com/yanizio/ponyracer/internal/workflow"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

var kinds = []string{workflow.LoginForm, workflow.RegisterForm}

// Users is the part of the API the forms call.
type Users interface {
	workflow.Authenticator
	workflow.Registrar
}

// Options wires a Component.
type Options struct {
	Definitions *form.Definitions
	Registry    *form.Registry
	Users       Users
	Views       viewstate.Options
	Now         func() time.Time // register default birth year; time.Now when nil
}

// Component serves the login and register forms.
type Component struct {
	env   *web.Env
	defs  *form.Definitions
	reg   *form.Registry
	users Users
	now   func() time.Time
	store *viewstate.Store
}

// New checks that both form definitions exist and starts the view store.
func New(env *web.Env, opts Options) (*Component, error) {
	for _, kind := range kinds {
		if _, ok := opts.Definitions.Get(kind); !ok {
			return nil, fmt.Errorf("auth: form definition %q missing", kind)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Component{
		env:   env,
		defs:  opts.Definitions,
		reg:   opts.Registry,
		users: opts.Users,
		now:   opts.Now,
	}
	c.store = viewstate.New(c.mount, opts.Views)
	return c, nil
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "auth" }

// Routes adds the form endpoints.
func (c *Component) Routes(r chi.Router) {
	for _, kind := range kinds {
		base := web.Path(kind)
		r.Get(base, c.handleShow(kind))
		r.Post(base, c.handleSubmit(kind))
		r.Post(base+"/field", c.handleField(kind))
		r.Post(base+"/alert/dismiss", c.handleDismiss(kind))
	}
}

// Close unmounts every view.
func (c *Component) Close() error {
	c.store.Close()
	return nil
}

// mount is the viewstate.Factory of this component.
func (c *Component) mount(kind string, nav workflow.Navigator, alerts workflow.Alerter) (*form.Definition, *workflow.Workflow, error) {
	def, ok := c.defs.Get(kind)
	if !ok {
		return nil, nil, viewstate.ErrUnknownKind
	}
	switch kind {
	case workflow.LoginForm:
		f, err := def.NewForm(c.reg, nil)
		if err != nil {
			return nil, nil, err
		}
		return def, workflow.NewLogin(f, c.users, nav, alerts), nil
	case workflow.RegisterForm:
		f, err := def.NewForm(c.reg, workflow.RegisterDefaults(c.now()))
		if err != nil {
			return nil, nil, err
		}
		return def, workflow.NewRegister(f, c.users, nav, alerts), nil
	}
	return nil, nil, viewstate.ErrUnknownKind
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) handleShow(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := c.store.Obtain(kind, r.URL.Query().Get(form.ViewField))
		if err != nil {
			web.Fail(w, r, http.StatusInternalServerError, err)
			return
		}
		c.render(w, r, v, http.StatusOK)
	}
}

func (c *Component) handleSubmit(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, posted, ok := c.obtain(w, r, kind)
		if !ok {
			return
		}
		// The pending call owns the form values until it settles.
		if v.Workflow.State() == workflow.Submitting {
			c.render(w, r, v, http.StatusConflict)
			return
		}
		if err := form.Bind(v.Form(), v.Def, posted); err != nil {
			web.Fail(w, r, http.StatusBadRequest, err)
			return
		}

		st, err := v.Workflow.Submit(r.Context())
		switch {
		case errors.Is(err, workflow.ErrFormInvalid):
			c.render(w, r, v, http.StatusUnprocessableEntity)
			return
		case errors.Is(err, workflow.ErrSubmissionPending):
			c.render(w, r, v, http.StatusConflict)
			return
		case errors.Is(err, workflow.ErrCompleted),
			errors.Is(err, workflow.ErrClosed),
			errors.Is(err, workflow.ErrDiscarded):
			// The view is gone or done; start over on a fresh one.
			http.Redirect(w, r, web.Path(kind), http.StatusSeeOther)
			return
		case err != nil:
			web.Fail(w, r, http.StatusInternalServerError, err)
			return
		}

		route, navigated := v.Navigation()
		if st == workflow.Success && navigated {
			if user, ok := v.Workflow.User(); ok {
				c.env.Sessions.LoginUser(w, r, user.Login)
			}
			c.store.Remove(v.ID)
			http.Redirect(w, r, web.Path(route), http.StatusSeeOther)
			return
		}
		c.render(w, r, v, http.StatusOK)
	}
}

// fieldResponse is the JSON answer of the field endpoint.  Seq echoes the
// edit number the page sent; Stale is set when a newer edit of the same
// field was already applied and this one was ignored.
type fieldResponse struct {
	View  string `json:"view"`
	HTML  string `json:"html"`
	Valid bool   `json:"valid"`
	Seq   uint64 `json:"seq"`
	Stale bool   `json:"stale,omitempty"`
}

func (c *Component) handleField(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, posted, ok := c.obtain(w, r, kind)
		if !ok {
			return
		}
		name := posted.Get("name")
		fd, found := v.Def.Field(name)
		if !found {
			web.Fail(w, r, http.StatusBadRequest, fmt.Errorf("%w %q", form.ErrUnknownField, name))
			return
		}
		var seq uint64
		if raw := posted.Get("seq"); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				web.Fail(w, r, http.StatusBadRequest, fmt.Errorf("seq %q: %w", raw, err))
				return
			}
			seq = n
		}
		fresh := v.AcceptEdit(name, seq)
		if fresh {
			if err := form.BindField(v.Form(), fd, posted.Get("value")); err != nil {
				web.Fail(w, r, http.StatusBadRequest, err)
				return
			}
			if posted.Get("event") == "blur" {
				_ = v.Form().Blur(name)
			}
		}

		frag, err := form.RenderField(v.Def, v.Form(), name)
		if err != nil {
			web.Fail(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(fieldResponse{
			View:  v.ID,
			HTML:  string(frag),
			Valid: v.Form().IsFormValid(),
			Seq:   seq,
			Stale: !fresh,
		})
	}
}

func (c *Component) handleDismiss(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posted, err := form.ReadSubmission(r, c.env.CSRF)
		if err != nil {
			web.Fail(w, r, http.StatusForbidden, err)
			return
		}
		target := web.Path(kind)
		if v, ok := c.store.Get(posted.Get(form.ViewField)); ok && v.Kind == kind {
			v.Workflow.Dismiss()
			target += "?" + url.Values{form.ViewField: {v.ID}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

/*──────────────────────────── Helpers ──────────────────────────────────────*/

// obtain verifies the CSRF token and returns the posted view.  It writes the
// error response itself and reports ok == false on failure.
func (c *Component) obtain(w http.ResponseWriter, r *http.Request, kind string) (*viewstate.View, url.Values, bool) {
	posted, err := form.ReadSubmission(r, c.env.CSRF)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, form.ErrBadToken) {
			status = http.StatusForbidden
		}
		web.Fail(w, r, status, err)
		return nil, nil, false
	}
	v, err := c.store.Obtain(kind, posted.Get(form.ViewField))
	if err != nil {
		web.Fail(w, r, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	return v, posted, true
}

// formPage is the data of form.html.
type formPage struct {
	web.Page
	Form       template.HTML
	Alert      *workflow.Alert
	DismissURL string
	ViewID     string
}

func (c *Component) render(w http.ResponseWriter, r *http.Request, v *viewstate.View, status int) {
	page, err := c.env.Page(r, v.Def.Title, v.Kind)
	if err != nil {
		web.Fail(w, r, http.StatusInternalServerError, err)
		return
	}
	base := web.Path(v.Kind)
	html, err := form.Render(v.Def, v.Form(), form.RenderOptions{
		Action:   base,
		FieldURL: base + "/field",
		ViewID:   v.ID,
		Token:    page.Token,
	})
	if err != nil {
		web.Fail(w, r, http.StatusInternalServerError, err)
		return
	}

	data := formPage{Page: page, Form: html, DismissURL: base + "/alert/dismiss", ViewID: v.ID}
	if a, ok := v.VisibleAlert(); ok {
		data.Alert = &a
	}
	w.Header().Set("Cache-Control", "no-store")
	_ = c.env.Views.Render(w, status, "form", data)
}
