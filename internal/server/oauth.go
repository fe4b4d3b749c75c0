package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/monthlies/internal/shared"
	"golang.org/x/oauth2"
)

// CallbackPath is where Spotify redirects after the user approves access.
const CallbackPath = "/callback"

// Exchanger trades an authorization code for a token. [oauth2.Config] satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// OAuthResult is the outcome of one authorization attempt.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

var page = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<title>monthlies</title>
<style>
body { font-family: system-ui, sans-serif; display: grid; place-items: center; height: 100vh; margin: 0; background: #121212; color: #eee; }
h1 { color: {{if .OK}}#1DB954{{else}}#e22134{{end}}; }
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Detail}}</p>
</main>
</body>
</html>
`))

type pageData struct {
	OK     bool
	Title  string
	Detail string
}

// OAuthHandler accepts exactly one authorization callback and publishes its result.
// Later callbacks are rejected so a replayed code is never exchanged.
type OAuthHandler struct {
	exchanger Exchanger
	state     string
	used      atomic.Bool
	once      sync.Once
	results   chan OAuthResult
}

// NewOAuthHandler expects state to be the random value sent with the authorization URL.
func NewOAuthHandler(exchanger Exchanger, state string) *OAuthHandler {
	return &OAuthHandler{
		exchanger: exchanger,
		state:     state,
		results:   make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.used.CompareAndSwap(false, true) {
		h.render(w, http.StatusBadRequest, pageData{Title: "Already authorized", Detail: "This login link has been used."})
		return
	}

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description")))
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err))
		return
	}

	h.publish(OAuthResult{Token: token})
	h.render(w, http.StatusOK, pageData{
		OK:     true,
		Title:  "✓ Connected to Spotify",
		Detail: "monthlies can now manage your playlists. Close this window and return to the terminal.",
	})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.publish(OAuthResult{err: err})
	h.render(w, status, pageData{Title: "✗ Authorization failed", Detail: err.Error()})
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = page.Execute(w, data)
}

func (h *OAuthHandler) publish(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one value, then closes.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}
