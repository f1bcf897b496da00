package httpx

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so that the first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ErrorHandler writes err as the response. Middlewares in this package hand
// their failures to one so the caller controls the wire format.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
