package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/ponyracer/internal/api"
	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/session"
	"github.com/yanizio/ponyracer/internal/view"
	"github.com/yanizio/ponyracer/internal/viewstate"
	"github.com/yanizio/ponyracer/internal/web"
)

var (
	tokenRE = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)
	viewRE  = regexp.MustCompile(`name="view" value="([^"]+)"`)
)

func fixedNow() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }

type fakeUsers struct {
	mu    sync.Mutex
	fail  bool
	creds api.Credentials
	reg   api.Registration

	// When set, Authenticate signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeUsers) Authenticate(_ context.Context, cr api.Credentials) (api.User, error) {
	f.mu.Lock()
	f.creds = cr
	fail, entered, release := f.fail, f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if fail {
		return api.User{}, &api.StatusError{Code: http.StatusNotFound}
	}
	return api.User{Login: cr.Login, Token: "t"}, nil
}

func (f *fakeUsers) Register(_ context.Context, r api.Registration) (api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reg = r
	if f.fail {
		return api.User{}, &api.StatusError{Code: http.StatusBadRequest}
	}
	return api.User{Login: r.Login, BirthYear: r.BirthYear}, nil
}

type harness struct {
	t        *testing.T
	handler  http.Handler
	comp     *Component
	users    *fakeUsers
	sessions *session.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	defs, err := web.Definitions()
	require.NoError(t, err)

	key := []byte(strings.Repeat("s", 32))
	env := &web.Env{
		Views:    view.New(web.Templates(), view.Options{Now: fixedNow}),
		CSRF:     form.NewCSRF(key, 0),
		Sessions: session.New(key),
	}
	users := &fakeUsers{}
	comp, err := New(env, Options{
		Definitions: defs,
		Registry:    form.NewRegistry(),
		Users:       users,
		Views:       viewstate.Options{EvictInterval: time.Hour},
		Now:         fixedNow,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = comp.Close() })

	return &harness{t: t, handler: web.NewRouter(env, comp), comp: comp, users: users, sessions: env.Sessions}
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func (h *harness) post(path string, vals url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

// open renders path and returns the CSRF token and view ID of its form.
func (h *harness) open(path string) (token, viewID string) {
	h.t.Helper()
	rr := h.get(path)
	require.Equal(h.t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	tm, vm := tokenRE.FindStringSubmatch(body), viewRE.FindStringSubmatch(body)
	require.NotNil(h.t, tm, "no csrf token in page")
	require.NotNil(h.t, vm, "no view id in page")
	return tm[1], vm[1]
}

func TestLoginPageStartsPristine(t *testing.T) {
	h := newHarness(t)
	rr := h.get("/login")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, body, `id="login-input"`)
	assert.Contains(t, body, `id="password-input"`)
	assert.NotContains(t, body, "is-invalid")
	assert.NotContains(t, body, "invalid-feedback")
	assert.Contains(t, body, "disabled>Let&#39;s go!</button>")
}

func TestLoginSuccessRedirectsHomeWithSession(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/login")

	rr := h.post("/login", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"cedric"}, "password": {"password"},
	})

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, api.Credentials{Login: "cedric", Password: "password"}, h.users.creds)
	assert.Equal(t, 0, h.comp.store.Len(), "view unmounted after success")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	login, ok := h.sessions.CurrentLogin(req)
	assert.True(t, ok)
	assert.Equal(t, "cedric", login)
}

func TestLoginFailureShowsAlertThenDismiss(t *testing.T) {
	h := newHarness(t)
	h.users.fail = true
	tok, id := h.open("/login")

	rr := h.post("/login", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"cedric"}, "password": {"wrong"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "alert-danger")
	assert.Contains(t, body, "Nope, try again")
	assert.Contains(t, body, `value="cedric"`, "form stays populated")

	tok2 := tokenRE.FindStringSubmatch(body)[1]
	rr = h.post("/login/alert/dismiss", url.Values{form.TokenField: {tok2}, form.ViewField: {id}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?view="+url.QueryEscape(id), rr.Header().Get("Location"))

	rr = h.get(rr.Header().Get("Location"))
	assert.NotContains(t, rr.Body.String(), "Nope, try again")
	assert.Contains(t, rr.Body.String(), `value="cedric"`)
}

func TestInvalidSubmitRerendersWithErrors(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/register")

	rr := h.post("/register", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"ce"}, "password": {"password"}, "birthYear": {"1986"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Zero(t, h.users.reg, "service not called")
	body := rr.Body.String()
	assert.Contains(t, body, `class="form-label text-danger"`)
	assert.Contains(t, body, `class="form-control is-invalid"`)
	assert.Contains(t, body, "The login must be at least 3 characters.")
	assert.Contains(t, body, "disabled>Let&#39;s Go!</button>")
}

func TestMissingTokenIsForbidden(t *testing.T) {
	h := newHarness(t)
	_, id := h.open("/login")

	rr := h.post("/login", url.Values{form.ViewField: {id}, "login": {"cedric"}, "password": {"p"}})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, h.users.creds)
}

func TestRegisterDefaultsAndPayload(t *testing.T) {
	h := newHarness(t)
	rr := h.get("/register")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="birthYear" type="number" class="form-control" value="2007"`)

	tok := tokenRE.FindStringSubmatch(rr.Body.String())[1]
	id := viewRE.FindStringSubmatch(rr.Body.String())[1]
	rr = h.post("/register", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"cedric"}, "password": {"password"}, "birthYear": {"1986"},
	})

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, api.Registration{Login: "cedric", Password: "password", BirthYear: 1986}, h.users.reg)
}

func TestRegisterFailureMessage(t *testing.T) {
	h := newHarness(t)
	h.users.fail = true
	tok, id := h.open("/register")

	rr := h.post("/register", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"cedric"}, "password": {"password"}, "birthYear": {"1986"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Try again with another login")
}

func TestFieldEndpointRevalidates(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/register")

	rr := h.post("/register/field", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"name": {"login"}, "value": {"ce"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var res fieldResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, id, res.View)
	assert.False(t, res.Valid)
	assert.Contains(t, res.HTML, "is-invalid")
	assert.Contains(t, res.HTML, "The login must be at least 3 characters.")

	rr = h.post("/register/field", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"name": {"login"}, "value": {"cedric"},
	})
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotContains(t, res.HTML, "is-invalid")
	assert.False(t, res.Valid, "password still empty")
}

func TestFieldEndpointUnknownField(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/login")

	rr := h.post("/login/field", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"name": {"email"}, "value": {"x"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStaleViewIsReplaced(t *testing.T) {
	h := newHarness(t)
	tok, _ := h.open("/login")

	rr := h.post("/login", url.Values{
		form.TokenField: {tok}, form.ViewField: {"expired"},
		"login": {"cedric"}, "password": {"password"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "cedric", h.users.creds.Login)
}

func TestRegisterBirthYearClearedThenRestored(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/register")
	field := func(value string) fieldResponse {
		rr := h.post("/register/field", url.Values{
			form.TokenField: {tok}, form.ViewField: {id},
			"name": {"birthYear"}, "value": {value},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		var res fieldResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		return res
	}

	cleared := field("")
	assert.Contains(t, cleared.HTML, "The birthYear is required.")

	restored := field("2007")
	assert.NotContains(t, restored.HTML, "invalid-feedback")
	assert.NotContains(t, restored.HTML, "is-invalid")
}

func TestFieldEndpointIgnoresOutOfOrderEdits(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/login")

	field := func(value, seq string) fieldResponse {
		t.Helper()
		rr := h.post("/login/field", url.Values{
			form.TokenField: {tok}, form.ViewField: {id},
			"name": {"login"}, "value": {value}, "seq": {seq},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		var res fieldResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		return res
	}

	res := field("c", "2")
	assert.Equal(t, uint64(2), res.Seq)
	assert.False(t, res.Stale)

	// The cleared value was typed first but arrives last.
	res = field("", "1")
	assert.True(t, res.Stale)
	assert.Equal(t, uint64(1), res.Seq)
	assert.NotContains(t, res.HTML, "The login is required")

	v, ok := h.comp.store.Get(id)
	require.True(t, ok)
	st, _ := v.Form().Field("login")
	assert.Equal(t, "c", st.Value)
	assert.Empty(t, st.Error)
}

func TestFieldEndpointRejectsBadSeq(t *testing.T) {
	h := newHarness(t)
	tok, id := h.open("/login")

	rr := h.post("/login/field", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"name": {"login"}, "value": {"c"}, "seq": {"-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitWhilePendingKeepsValues(t *testing.T) {
	h := newHarness(t)
	h.users.entered = make(chan struct{})
	h.users.release = make(chan struct{})
	tok, id := h.open("/login")

	done := make(chan int)
	go func() {
		rr := h.post("/login", url.Values{
			form.TokenField: {tok}, form.ViewField: {id},
			"login": {"cedric"}, "password": {"password"},
		})
		done <- rr.Code
	}()
	<-h.users.entered

	rr := h.post("/login", url.Values{
		form.TokenField: {tok}, form.ViewField: {id},
		"login": {"intruder"}, "password": {"other"},
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	v, ok := h.comp.store.Get(id)
	require.True(t, ok)
	st, _ := v.Form().Field("login")
	assert.Equal(t, "cedric", st.Value)

	close(h.users.release)
	assert.Equal(t, http.StatusSeeOther, <-done)
	assert.Equal(t, "cedric", h.users.creds.Login)
}
