// components/races/races.go
//
// Races component – lists the pending races with their ponies and a
// relative start time (“in 5 minutes”).

package races

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/internal/component"
	"github.com/yanizio/ponyracer/internal/race"
	"github.com/yanizio/ponyracer/internal/web"
)

var _ component.Component = (*Component)(nil)

// Lister returns the pending races.  *api.Races satisfies it.
type Lister interface {
	List(ctx context.Context) ([]race.Race, error)
}

// Component serves the race list.
type Component struct {
	env   *web.Env
	races Lister
}

// New returns the races component.
func New(env *web.Env, races Lister) *Component {
	return &Component{env: env, races: races}
}

func (c *Component) Name() string { return "races" }

func (c *Component) Routes(r chi.Router) {
	r.Get(web.Path(web.RouteRaces), c.handleList)
}

type racesPage struct {
	web.Page
	Races       []race.Race
	Unavailable bool
}

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := c.env.Page(r, "Races", web.RouteRaces)
	if err != nil {
		web.Fail(w, r, http.StatusInternalServerError, err)
		return
	}

	data := racesPage{Page: page}
	status := http.StatusOK
	list, err := c.races.List(r.Context())
	if err != nil {
		zap.S().Warnw("race list unavailable", "err", err)
		data.Unavailable = true
		status = http.StatusBadGateway
	}
	data.Races = list
	_ = c.env.Views.Render(w, status, "races", data)
}
