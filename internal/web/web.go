// internal/web/web.go
//
// Ponyracer – web shell.
//
// Context
//   The web package owns what every page shares: the embedded form
//   definitions, templates, and static assets; the named routes; the page
//   chrome (title, navigation, signed-in user, CSRF token); and the root
//   chi router that components add their routes to.
//
//   Routes are referred to by name everywhere (“home”, “login”, …).  The
//   workflows navigate by name and Path resolves the URL.
//
//------------------------------------------------------------------------------

package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/internal/component"
	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/middleware"
	"github.com/yanizio/ponyracer/internal/session"
	"github.com/yanizio/ponyracer/internal/view"
)

var (
	//go:embed forms/*.yaml
	formFS embed.FS

	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed static/*
	staticFS embed.FS
)

// Named routes.
const (
	RouteHome     = "home"
	RouteLogin    = "login"
	RouteRegister = "register"
	RouteRaces    = "races"
)

var routes = map[string]string{
	RouteHome:     "/",
	RouteLogin:    "/login",
	RouteRegister: "/register",
	RouteRaces:    "/races",
}

// Path returns the URL path of a named route.  Unknown names map to home.
func Path(name string) string {
	if p, ok := routes[name]; ok {
		return p
	}
	zap.S().Warnw("unknown route", "route", name)
	return routes[RouteHome]
}

// Definitions loads the embedded form definitions.
func Definitions() (*form.Definitions, error) {
	return form.LoadDefinitions(formFS, "forms")
}

// Templates returns the embedded page templates.
func Templates() fs.FS { return mustSub(templateFS, "templates") }

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err) // embedded layout is fixed at build time
	}
	return sub
}

// -----------------------------------------------------------------------------
// Page chrome
// -----------------------------------------------------------------------------

// Env is what handlers need to render pages.
type Env struct {
	Views    *view.Engine
	CSRF     *form.CSRF
	Sessions *session.Manager
}

// NavLink is one entry of the navigation bar.
type NavLink struct {
	Label  string
	Href   string
	Active bool
}

// Page is the data every template receives.  Page-specific structs embed
// it.
type Page struct {
	Title string
	Nav   []NavLink
	Login string // signed-in user, empty when anonymous
	Token string // CSRF token for forms in the chrome (logout)
}

// Page builds the chrome for a page titled title under route active.
func (e *Env) Page(r *http.Request, title, active string) (Page, error) {
	tok, err := e.CSRF.Generate()
	if err != nil {
		return Page{}, err
	}
	login, _ := e.Sessions.CurrentLogin(r)

	p := Page{Title: title, Login: login, Token: tok}
	links := []struct{ label, route string }{
		{"Home", RouteHome},
		{"Races", RouteRaces},
	}
	if login == "" {
		links = append(links,
			struct{ label, route string }{"Log in", RouteLogin},
			struct{ label, route string }{"Sign up", RouteRegister},
		)
	}
	for _, l := range links {
		p.Nav = append(p.Nav, NavLink{Label: l.label, Href: Path(l.route), Active: l.route == active})
	}
	return p, nil
}

// Fail logs err and answers with a bare status page.
func Fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	zap.S().Errorw("request failed",
		"path", r.URL.Path,
		"status", status,
		"request_id", chimw.GetReqID(r.Context()),
		"err", err,
	)
	http.Error(w, http.StatusText(status), status)
}

// -----------------------------------------------------------------------------
// Root router
// -----------------------------------------------------------------------------

// NewRouter builds the root handler: shared middleware, the home page,
// logout, static assets, and the routes of every component.
func NewRouter(env *Env, comps ...component.Component) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)

	r.Get(Path(RouteHome), env.home)
	r.Post("/logout", env.logout)
	r.Handle("/static/*", http.StripPrefix("/static/",
		http.FileServer(http.FS(mustSub(staticFS, "static")))))

	component.Mount(r, comps...)

	r.NotFound(env.notFound)
	return r
}

func (e *Env) home(w http.ResponseWriter, r *http.Request) {
	p, err := e.Page(r, "Ponyracer", RouteHome)
	if err != nil {
		Fail(w, r, http.StatusInternalServerError, err)
		return
	}
	_ = e.Views.Render(w, http.StatusOK, "home", p)
}

func (e *Env) logout(w http.ResponseWriter, r *http.Request) {
	if _, err := form.ReadSubmission(r, e.CSRF); err != nil {
		Fail(w, r, http.StatusForbidden, err)
		return
	}
	e.Sessions.LogoutUser(w, r)
	http.Redirect(w, r, Path(RouteHome), http.StatusSeeOther)
}

func (e *Env) notFound(w http.ResponseWriter, r *http.Request) {
	p, err := e.Page(r, "Not found", "")
	if err != nil {
		Fail(w, r, http.StatusInternalServerError, err)
		return
	}
	_ = e.Views.Render(w, http.StatusNotFound, "notfound", p)
}
