package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// GuestPrefix marks identities that are not backed by an account. Guest
// identities are derived from a device id and scope carts, shipping data,
// and ledgers for unauthenticated customers.
const GuestPrefix = "guest:"

// resolveTimeout bounds how long a request waits for the session store
// before falling back to guest. Mirrors the storefront's "wait for user"
// guard: better a guest view than a hung page.
const resolveTimeout = 3 * time.Second

func IsGuest(customerID string) bool {
	return customerID == "" || strings.HasPrefix(customerID, GuestPrefix)
}

// Resolver maps an opaque session token to a customer id. An unknown token
// resolves to the empty id without error.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RedisResolver resolves session tokens against the session store. Token
// issuance lives in the auth system, out of scope here.
type RedisResolver struct {
	client *redis.Client
}

func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

func (r *RedisResolver) Resolve(ctx context.Context, token string) (string, error) {
	customerID, err := r.client.Get(ctx, fmt.Sprintf("session:%s", token)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return customerID, nil
}

type contextKey struct{}

// WithCustomer returns a context carrying the resolved customer id.
func WithCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, customerID)
}

// FromContext returns the customer id the middleware resolved for this
// request. The second result is false when the request carried neither a
// session nor a device id.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Middleware resolves the request identity: a valid bearer token wins, an
// X-Device-ID header yields a guest identity, and a session-store timeout
// degrades to guest instead of failing the request.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID := ""

			if token := bearerToken(r); token != "" {
				ctx, cancel := context.WithTimeout(r.Context(), resolveTimeout)
				id, err := resolver.Resolve(ctx, token)
				cancel()
				switch {
				case errors.Is(err, context.DeadlineExceeded):
					logger.Warn("identity resolution timed out, treating as guest")
				case err != nil:
					logger.Warn("identity resolution failed, treating as guest", "error", err)
				default:
					customerID = id
				}
			}

			if customerID == "" {
				if device := r.Header.Get("X-Device-ID"); device != "" {
					customerID = GuestPrefix + device
				}
			}

			next.ServeHTTP(w, r.WithContext(WithCustomer(r.Context(), customerID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
