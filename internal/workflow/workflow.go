// internal/workflow/workflow.go
//
// Ponyracer – submission workflows.
//
// Context
//   A Workflow binds one mounted Form to a remote call and turns the outcome
//   into UI effects: navigation on success, a danger alert on failure.
//
//      Idle ──Submit(valid)──▶ Submitting ──ok──▶ Success (terminal)
//        ▲                         │
//        └──────Dismiss────── Failure ◀──err──┘
//
//   Submit is allowed from Idle and Failure.  A second Submit while a call
//   is in flight returns ErrSubmissionPending.  Every error from the call is
//   treated the same way; its cause never reaches the user.
//
// Teardown
//   Close bumps a generation counter.  A call that returns after Close (or
//   after a newer generation started) is discarded without touching the
//   collaborators.  Collaborators are invoked while the workflow lock is
//   held, so they must not call back into the Workflow.
//
//------------------------------------------------------------------------------

package workflow

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/internal/api"
	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/metrics"
)

// RouteHome is the route navigated to after a successful submission.
const RouteHome = "home"

var (
	// ErrFormInvalid is returned when Submit is gated by an invalid form.
	ErrFormInvalid = errors.New("form is not valid")
	// ErrSubmissionPending is returned while a call is in flight.
	ErrSubmissionPending = errors.New("submission already in progress")
	// ErrCompleted is returned once the workflow has succeeded.
	ErrCompleted = errors.New("submission already completed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workflow closed")
	// ErrDiscarded is returned when a call resolves after teardown.
	ErrDiscarded = errors.New("submission result discarded")
)

// State is a workflow state.
type State int

const (
	Idle State = iota
	Submitting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Variant classifies an alert's presentation.
type Variant string

// Danger is the variant of every submission failure alert.
const Danger Variant = "danger"

// Alert is shown after a failed submission.
type Alert struct {
	Message string
	Variant Variant
}

// Navigator moves the user to a named route.
type Navigator interface {
	Navigate(route string)
}

// Alerter displays and removes the alert of one view.
type Alerter interface {
	ShowAlert(Alert)
	ClearAlert()
}

// Call performs the remote operation for the submitted values.
type Call func(ctx context.Context, values form.Values) (api.User, error)

// Workflow is safe for concurrent use.
type Workflow struct {
	name    string
	failure string
	form    *form.Form
	call    Call
	nav     Navigator
	alerts  Alerter

	mu     sync.Mutex
	state  State
	gen    uint64
	closed bool
	alert  *Alert
	user   api.User
}

// New builds a workflow named name (used in logs and metrics).  failure is
// the fixed alert message shown for any failed call.
func New(name, failure string, f *form.Form, call Call, nav Navigator, alerts Alerter) *Workflow {
	return &Workflow{
		name:    name,
		failure: failure,
		form:    f,
		call:    call,
		nav:     nav,
		alerts:  alerts,
	}
}

// Form returns the bound form.
func (w *Workflow) Form() *form.Form { return w.form }

// Submit runs the workflow once and returns the resulting state.  Service
// failures are not errors: they move the workflow to Failure and show the
// alert.  Errors report why nothing was applied.
func (w *Workflow) Submit(ctx context.Context) (State, error) {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return w.state, ErrClosed
	case w.state == Submitting:
		w.mu.Unlock()
		return Submitting, ErrSubmissionPending
	case w.state == Success:
		w.mu.Unlock()
		return Success, ErrCompleted
	}

	var vals form.Values
	if !w.form.Submit(func(v form.Values) { vals = v }) {
		st := w.state
		w.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues(w.name, "invalid").Inc()
		return st, ErrFormInvalid
	}
	w.state = Submitting
	gen := w.gen
	w.mu.Unlock()

	user, err := w.call(ctx, vals)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || gen != w.gen {
		zap.S().Debugw("submission resolved after teardown", "form", w.name)
		metrics.SubmissionsTotal.WithLabelValues(w.name, "discarded").Inc()
		return w.state, ErrDiscarded
	}

	if err != nil {
		w.state = Failure
		a := Alert{Message: w.failure, Variant: Danger}
		w.alert = &a
		w.alerts.ShowAlert(a)
		zap.S().Warnw("submission failed", "form", w.name, "error", err)
		metrics.SubmissionsTotal.WithLabelValues(w.name, "failure").Inc()
		return Failure, nil
	}

	w.state = Success
	w.user = user
	w.alert = nil
	w.alerts.ClearAlert()
	w.nav.Navigate(RouteHome)
	zap.S().Infow("submission succeeded", "form", w.name, "login", user.Login)
	metrics.SubmissionsTotal.WithLabelValues(w.name, "success").Inc()
	return Success, nil
}

// Dismiss removes the failure alert and returns to Idle.  It is a no-op in
// any other state.
func (w *Workflow) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.state != Failure {
		return
	}
	w.state = Idle
	w.alert = nil
	w.alerts.ClearAlert()
}

// Close tears the workflow down.  Pending calls resolve into ErrDiscarded.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.gen++
	w.mu.Unlock()
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Alert returns the alert currently shown, if any.
func (w *Workflow) Alert() (Alert, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.alert == nil {
		return Alert{}, false
	}
	return *w.alert, true
}

// User returns the user produced by a successful submission.
func (w *Workflow) User() (api.User, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user, w.state == Success
}
