package connectutil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/security"
	connectInterceptors "github.com/pitabwire/frame/security/interceptors/connect"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// DefaultOptions returns the default Connect handler options: the JSON codec
// and logging, no auth. Use AuthenticatedOptions for endpoints that require
// authentication.
func DefaultOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec()),
		connect.WithInterceptors(
			NewLoggingInterceptor(),
		),
	}
}

// AuthenticatedOptions returns Connect handler options with frame's full
// security interceptor chain (OpenTelemetry, validation, authentication)
// plus our logging interceptor.
func AuthenticatedOptions(ctx context.Context, authenticator security.Authenticator) ([]connect.HandlerOption, error) {
	interceptors, err := connectInterceptors.DefaultList(ctx, authenticator)
	if err != nil {
		return nil, err
	}
	// Append our logging interceptor after the auth chain.
	interceptors = append(interceptors, NewLoggingInterceptor())

	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec()),
		connect.WithInterceptors(interceptors...),
	}, nil
}

// AuthenticatedHTTPMiddleware wraps an http.Handler with frame's
// authentication middleware, validating bearer tokens on plain HTTP routes.
func AuthenticatedHTTPMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}

// DefaultClientOptions returns the default Connect client options.
func DefaultClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(JSONCodec()),
		connect.WithInterceptors(
			NewLoggingInterceptor(),
		),
	}
}

// BearerToken returns a client interceptor that sends token on every call.
func BearerToken(token string) connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" && req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	})
}

// NewLoggingInterceptor logs every unary call with its procedure and
// duration. Failed calls are logged at warn level with the connect code.
func NewLoggingInterceptor() connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				slog.String("procedure", req.Spec().Procedure),
				slog.Duration("duration", time.Since(start)),
				slog.Bool("client", req.Spec().IsClient),
			}
			if err != nil {
				attrs = append(attrs,
					slog.String("code", connect.CodeOf(err).String()),
					slog.String("error", err.Error()),
				)
				slog.WarnContext(ctx, "rpc error", attrs...)
			} else {
				slog.DebugContext(ctx, "rpc ok", attrs...)
			}
			return resp, err
		}
	})
}
