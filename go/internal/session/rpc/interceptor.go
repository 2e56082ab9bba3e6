package rpc

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/livequiz/go/internal/auth"
)

// ErrUnauthenticated is returned when a call carries no valid bearer token
var ErrUnauthenticated = errors.New("unauthenticated")

const authHeader = "Authorization"

// Verifier turns a bearer token into a caller identity
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// NewAuthInterceptor rejects calls without a valid bearer token and puts the
// caller identity on the handler context
func NewAuthInterceptor(v Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token, ok := strings.CutPrefix(req.Header().Get(authHeader), "Bearer ")
			if !ok || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, ErrUnauthenticated)
			}
			id, err := v.Verify(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(auth.WithIdentity(ctx, id), req)
		}
	}
}

// NewTokenInterceptor attaches a bearer token to outgoing client calls
func NewTokenInterceptor(token func() string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				if t := token(); t != "" {
					req.Header().Set(authHeader, "Bearer "+t)
				}
			}
			return next(ctx, req)
		}
	}
}
