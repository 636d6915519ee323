// internal/component/registry.go
//
// Component contract.
//
// Each concrete component lives under components/<name>.  Components need
// their dependencies at construction, so cmd/web builds them explicitly and
// hands them to web.NewRouter, which lets every component add its routes to
// the shared root router in the order given.  (chi refuses two Mounts on
// the same pattern, so components register routes instead of returning a
// sub-router.)

package component

import (
	"io"

	"github.com/go-chi/chi/v5"
)

// Component contract.
//
// Routes() should add every page and fragment endpoint, e.g:
//
//	r.Get("/login", c.getLogin)
//	r.Post("/login/field", c.postField)
type Component interface {
	Name() string
	Routes(r chi.Router)
}

// Mount lets every component register its routes on r.
func Mount(r chi.Router, cs ...Component) {
	for _, c := range cs {
		c.Routes(r)
	}
}

// Close releases components holding resources (io.Closer), in reverse
// mount order.
func Close(cs ...Component) {
	for i := len(cs) - 1; i >= 0; i-- {
		if c, ok := cs[i].(io.Closer); ok {
			_ = c.Close()
		}
	}
}
