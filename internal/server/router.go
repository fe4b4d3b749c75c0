package server

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Routes serves method-qualified patterns ("GET /callback") behind one middleware chain.
//
// The first middleware given is the outermost.
type Routes struct {
	mux   *http.ServeMux
	chain []Middleware
}

// NewRoutes creates an empty route table wrapped by chain.
func NewRoutes(chain ...Middleware) *Routes {
	return &Routes{mux: http.NewServeMux(), chain: chain}
}

// Get registers h for GET (and HEAD) requests on path.
// Other methods get 405 from [http.ServeMux].
func (rt *Routes) Get(path string, h http.Handler) {
	rt.mux.Handle(http.MethodGet+" "+path, h)
}

func (rt *Routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = rt.mux
	for i := len(rt.chain) - 1; i >= 0; i-- {
		h = rt.chain[i](h)
	}
	h.ServeHTTP(w, r)
}
