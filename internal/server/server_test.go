package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/monthlies/internal/shared"
	"golang.org/x/oauth2"
)

type fakeExchanger struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	f.codes = append(f.codes, code)
	return f.token, f.err
}

func TestOAuthHandler(t *testing.T) {
	tc := []struct {
		name       string
		query      string
		exchange   error
		wantStatus int
		wantErr    bool
	}{
		{name: "success", query: "state=s1&code=abc", wantStatus: http.StatusOK},
		{name: "state mismatch", query: "state=other&code=abc", wantStatus: http.StatusBadRequest, wantErr: true},
		{name: "denied", query: "state=s1&error=access_denied", wantStatus: http.StatusBadRequest, wantErr: true},
		{name: "exchange failure", query: "state=s1&code=abc", exchange: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchanger{token: &oauth2.Token{AccessToken: "access"}, err: tt.exchange}
			h := NewOAuthHandler(ex, "s1")

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("content type = %q", ct)
			}

			result := <-h.Result()
			if tt.wantErr {
				if !errors.Is(result.Error(), shared.ErrAuthFailed) {
					t.Errorf("expected ErrAuthFailed, got %v", result.Error())
				}
				return
			}
			if result.Error() != nil || result.Token.AccessToken != "access" {
				t.Errorf("unexpected result %+v", result)
			}
			if len(ex.codes) != 1 || ex.codes[0] != "abc" {
				t.Errorf("exchanged codes = %v", ex.codes)
			}
		})
	}

	t.Run("second callback rejected", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{token: &oauth2.Token{AccessToken: "a"}}, "s1")

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=abc", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=abc", nil))

		if first.Code != http.StatusOK || second.Code != http.StatusBadRequest {
			t.Errorf("statuses = %d, %d", first.Code, second.Code)
		}
		if !strings.Contains(second.Body.String(), "has been used") {
			t.Errorf("unexpected body %q", second.Body.String())
		}
	})
}

func TestRoutes(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewRoutes(mark("first"), mark("second"))
		router.Get("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if got := strings.Join(order, ","); got != "first,second,handler" {
			t.Errorf("order = %s", got)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		router := NewRoutes()
		router.Get("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("recoverer", func(t *testing.T) {
		router := NewRoutes(Recoverer(log.New(io.Discard)))
		router.Get("/panic", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("request logger", func(t *testing.T) {
		var buf strings.Builder
		logger := log.New(&buf)
		logger.SetLevel(log.DebugLevel)

		router := NewRoutes(RequestLogger(logger))
		router.Get("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot?code=secret", nil))
		out := buf.String()
		if !strings.Contains(out, "/teapot") || !strings.Contains(out, "418") {
			t.Errorf("unexpected log output %q", out)
		}
		if strings.Contains(out, "secret") {
			t.Error("query string should not be logged")
		}
	})
}

func TestCallbackServer(t *testing.T) {
	t.Run("receives token", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{token: &oauth2.Token{AccessToken: "live"}}, "s1")
		srv := NewCallbackServer("127.0.0.1:0", h, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		go func() {
			resp, err := http.Get(fmt.Sprintf("http://%s/callback?state=s1&code=abc", srv.Addr()))
			if err == nil {
				resp.Body.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		token, err := srv.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if token.AccessToken != "live" {
			t.Errorf("token = %+v", token)
		}
	})

	t.Run("times out", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s1")
		srv := NewCallbackServer("127.0.0.1:0", h, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := srv.Wait(ctx); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("address in use", func(t *testing.T) {
		first := NewCallbackServer("127.0.0.1:0", NewOAuthHandler(&fakeExchanger{}, "s"), nil)
		if err := first.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer first.Shutdown()

		second := NewCallbackServer(first.Addr(), NewOAuthHandler(&fakeExchanger{}, "s"), nil)
		if err := second.Start(); err == nil {
			second.Shutdown()
			t.Error("expected error binding an address in use")
		}
	})
}
