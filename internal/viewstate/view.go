package viewstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/workflow"
)

// View is one mounted form page: its definition, its workflow (which owns
// the form), and the UI slots the workflow drives.  A View is the Navigator
// and Alerter of its own workflow.
type View struct {
	ID       string
	Kind     string
	Def      *form.Definition
	Workflow *workflow.Workflow

	lastSeen atomic.Int64

	mu    sync.Mutex
	alert *workflow.Alert
	route string
	seqs  map[string]uint64
}

var (
	_ workflow.Navigator = (*View)(nil)
	_ workflow.Alerter   = (*View)(nil)
)

// Form returns the mounted form.
func (v *View) Form() *form.Form { return v.Workflow.Form() }

// Navigate records the route requested by the workflow.
func (v *View) Navigate(route string) {
	v.mu.Lock()
	v.route = route
	v.mu.Unlock()
}

// Navigation returns the requested route, if any.
func (v *View) Navigation() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.route, v.route != ""
}

// ShowAlert mounts a.
func (v *View) ShowAlert(a workflow.Alert) {
	v.mu.Lock()
	v.alert = &a
	v.mu.Unlock()
}

// ClearAlert unmounts the alert.
func (v *View) ClearAlert() {
	v.mu.Lock()
	v.alert = nil
	v.mu.Unlock()
}

// VisibleAlert returns the mounted alert, if any.
func (v *View) VisibleAlert() (workflow.Alert, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.alert == nil {
		return workflow.Alert{}, false
	}
	return *v.alert, true
}

// AcceptEdit reports whether an edit of field numbered seq is newer than
// every edit of that field seen so far, and records it if so.  Live edits
// travel as independent requests; an older one arriving late must not
// overwrite the value or the messages of a newer one.  seq == 0 is unordered
// and always accepted.
func (v *View) AcceptEdit(field string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq <= v.seqs[field] {
		return false
	}
	if v.seqs == nil {
		v.seqs = make(map[string]uint64)
	}
	v.seqs[field] = seq
	return true
}

func (v *View) touch(now time.Time) { v.lastSeen.Store(now.UnixNano()) }
