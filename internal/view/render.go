// internal/view/render.go
//
// Central view engine: page lookup, func-map injection, and an LRU of
// parsed *template.Template* sets.
//
// Public helpers
// --------------
//   - Render         – write a rendered page to an http.ResponseWriter.
//   - RenderToString – return template.HTML (fragments, tests).
//
// Layout
// ------
// Every page is parsed together with “layout.html”.  The layout defines the
// root template “layout” and calls {{ template "content" . }}; each page file
// defines “title” and “content”.  Callers pass the logical name (e.g.
// "races"); the engine loads "<name>.html".
//
// Pages are rendered into a buffer first so a template error never leaves a
// half-written 200 response behind.
//
// Style
// -----
// • Oxford commas, two spaces after periods.

package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/internal/cache"
	"github.com/yanizio/ponyracer/internal/race"
)

const (
	layoutFile = "layout.html"
	rootName   = "layout"
)

// Options tunes an Engine.
type Options struct {
	// NoCache re-parses pages on every render (template development).
	NoCache bool
	// Now is the clock used by fromNow; defaults to time.Now.
	Now func() time.Time
}

// Engine renders pages from an fs.FS.  Safe for concurrent use.
type Engine struct {
	fsys    fs.FS
	lru     *cache.LRU[string, *template.Template]
	noCache bool
	now     func() time.Time
}

// New returns an Engine reading templates from fsys.
func New(fsys fs.FS, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		fsys:    fsys,
		lru:     cache.New[string, *template.Template](64),
		noCache: opts.NoCache,
		now:     opts.Now,
	}
}

//
// public helpers
//

// Render executes page name with data and writes it with status.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := e.execute(&buf, name, data); err != nil {
		zap.S().Errorw("render failed", "page", name, "err", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderToString executes page name and returns the HTML.
func (e *Engine) RenderToString(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.execute(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (e *Engine) execute(buf *bytes.Buffer, name string, data any) error {
	t, err := e.load(name)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(buf, rootName, data)
}

//
// internal: load
//

// load parses (or fetches from the LRU) the layout plus page set for name.
func (e *Engine) load(name string) (*template.Template, error) {
	if !e.noCache {
		if t, ok := e.lru.Get(name); ok {
			return t, nil
		}
	}
	t, err := template.New(rootName).
		Funcs(e.funcMap()).
		ParseFS(e.fsys, layoutFile, name+".html")
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", name, err)
	}
	if !e.noCache {
		e.lru.Add(name, t)
	}
	return t, nil
}

//
// func-map builders
//

func (e *Engine) funcMap() template.FuncMap {
	return template.FuncMap{
		"dict": dict,
		"fromNow": func(t time.Time) string {
			return race.FromNow(t, e.now())
		},
	}
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}
