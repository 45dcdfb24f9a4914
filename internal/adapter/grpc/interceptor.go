package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationKey  = "authorization"
	idempotencyKeyKey = "idempotency-key"
)

type usernameKey struct{}

// AuthInterceptor returns a gRPC unary server interceptor that resolves
// the bearer token from request metadata to the acting username.
// If the token is missing or unknown, it returns status.Unauthenticated.
// If valid, it calls the handler with the username stored in the context.
func AuthInterceptor(users map[string]string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get(authorizationKey)
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeaders[0], "Bearer "))
		username, ok := users[token]
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(context.WithValue(ctx, usernameKey{}, username), req)
	}
}

// UsernameFromContext returns the username stored by AuthInterceptor
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey{}).(string)
	return username, ok && username != ""
}

// BearerTokenInterceptor returns a gRPC unary client interceptor that attaches the API token
func BearerTokenInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if token != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+token)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// withIdempotencyKey attaches the idempotency key of one logical request
func withIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, idempotencyKeyKey, key)
}

// idempotencyKeyFromContext reads the idempotency key sent by the client
func idempotencyKeyFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if keys := md.Get(idempotencyKeyKey); len(keys) > 0 {
		return keys[0]
	}
	return ""
}
