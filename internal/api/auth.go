package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"sessionbook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	providerHeaderDefault = "x-provider-id"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

// keyring resolves configured API keys to callers.
type keyring struct {
	clients map[string]config.APIClientKey
}

func newKeyring(keys []config.APIClientKey) *keyring {
	m := make(map[string]config.APIClientKey, len(keys))
	for _, k := range keys {
		m[k.Key] = k
	}
	return &keyring{clients: m}
}

func (k *keyring) authenticate(apiKey, extra string) (Caller, error) {
	if apiKey == "" || extra == "" {
		return Caller{}, errMissingKey
	}
	client, ok := k.clients[apiKey]
	if !ok {
		return Caller{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return Caller{}, errInvalidExtra
	}
	return Caller{Name: client.Name, ProviderID: client.ProviderID, Permissions: client.Permissions}, nil
}

type headers struct {
	apiKey   string
	extra    string
	provider string
}

func newHeaders(cfg config.APIAuthConfig) headers {
	return headers{
		apiKey:   headerName(cfg.HeaderAPIKey, apiKeyHeaderDefault),
		extra:    headerName(cfg.HeaderExtra, apiExtraHeaderDefault),
		provider: headerName(cfg.HeaderProvider, providerHeaderDefault),
	}
}

// AuthInterceptor authenticates gRPC calls and attaches the Caller to the context.
type AuthInterceptor struct {
	cfg     *config.APIConfig
	headers headers
	keys    *keyring
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:     cfg,
		headers: newHeaders(cfg.Auth),
		keys:    newKeyring(cfg.Auth.APIKeys),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		caller, err := a.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		if !a.limiter.allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(withCaller(ctx, caller), req)
	}
}

func (a *AuthInterceptor) authenticate(ctx context.Context, fullMethod string) (Caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !a.cfg.Auth.Enabled {
		return providerHeaderCaller(first(md.Get(a.headers.provider))), nil
	}
	if !ok {
		return Caller{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	caller, err := a.keys.authenticate(first(md.Get(a.headers.apiKey)), first(md.Get(a.headers.extra)))
	if err != nil {
		return Caller{}, status.Error(codes.Unauthenticated, err.Error())
	}
	if !caller.Allows(requiredPermission(fullMethod)) {
		return Caller{}, status.Error(codes.PermissionDenied, errPermissionDenied.Error())
	}
	return caller, nil
}

func requiredPermission(fullMethod string) string {
	switch strings.TrimPrefix(fullMethod, "/"+schedulingServiceName+"/") {
	case methodListSlots:
		return permReadSlots
	case methodCreateBooking:
		return permWriteBookings
	case methodGetBooking:
		return permReadBookings
	case methodCancelBooking, methodCompleteBooking, methodRunAutoCompletion, methodReconcileCounters:
		return permManageLifecycle
	default:
		return ""
	}
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.headers.apiKey)); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	headers headers
	keys    *keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		headers: newHeaders(cfg.Auth),
		keys:    newKeyring(cfg.Auth.APIKeys),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

// Authenticate resolves the Caller and applies the rate limit.
func (a *HTTPAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var caller Caller
		if a.cfg.Auth.Enabled {
			var err error
			caller, err = a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.headers.apiKey)),
				strings.TrimSpace(r.Header.Get(a.headers.extra)),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		} else {
			caller = providerHeaderCaller(r.Header.Get(a.headers.provider))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

// Require rejects callers that lack perm.
func (a *HTTPAuth) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CallerFromContext(r.Context()).Allows(perm) {
				writeError(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headers.apiKey)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
