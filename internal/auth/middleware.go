package auth

import (
	"context"
	"net/http"

	"github.com/sakif/issuedesk/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string,
// ANY package that knows the string can read or shadow your value. Only
// THIS package can create a key of type contextKey.
type contextKey string

const callerKey contextKey = "caller"

// Identify is a middleware that resolves the caller and stores it in the
// request context. It never rejects a request: handlers and the access
// policy decide what an unidentified caller may do.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler that wraps it:
//
//	req → M1 → M2 → Handler → M2 → M1 → resp
func Identify(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := resolver.Resolve(r)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller stored by Identify, or model.Nobody
// when the request never passed through it.
//
// Usage in handlers:
//
//	caller := auth.CallerFromContext(r.Context())
//	if !caller.HasIdentity() {
//	    // nobody
//	}
func CallerFromContext(ctx context.Context) model.Caller {
	c, ok := ctx.Value(callerKey).(model.Caller)
	if !ok {
		return model.Nobody
	}
	return c
}
