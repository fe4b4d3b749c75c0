// Package server runs the short-lived local HTTP server that completes the Spotify authorization flow.
//
// [Routes] maps method-qualified patterns onto an [http.ServeMux] and wraps the whole mux in a
// [Middleware] chain, so unknown paths and wrong methods are logged like any other request.
//
// [OAuthHandler] checks the state parameter, exchanges the authorization code and publishes the
// result on a channel. Only the first callback is honored.
//
// [CallbackServer] binds the configured address (127.0.0.1:3000 by default) and serves until a
// token arrives or the caller's context ends.
package server
