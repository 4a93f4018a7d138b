package api

import (
	"context"
	"strconv"
	"strings"
)

const (
	permReadSlots       = "read:slots"
	permWriteBookings   = "write:bookings"
	permReadBookings    = "read:bookings"
	permManageLifecycle = "manage:lifecycle"
	permExport          = "read:export"
	clientKeyUnknown    = "unknown"
)

// Caller is the authenticated party behind a request. ProviderID 0 is an
// operator key acting on every provider.
type Caller struct {
	Name        string
	ProviderID  int64
	Permissions []string
}

// Allows reports whether the caller holds perm. An empty permission list allows everything.
func (c Caller) Allows(perm string) bool {
	if perm == "" || len(c.Permissions) == 0 {
		return true
	}
	for _, p := range c.Permissions {
		if strings.TrimSpace(p) == perm {
			return true
		}
	}
	return false
}

type callerKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller attached by the auth layer, or an
// anonymous operator when auth did not run.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Caller{Name: clientKeyUnknown}
}

// providerHeaderCaller builds the caller used when auth is disabled: the
// provider scope comes from a plain header, absent or invalid means operator.
func providerHeaderCaller(raw string) Caller {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		id = 0
	}
	return Caller{Name: clientKeyUnknown, ProviderID: id}
}

func headerName(configured, fallback string) string {
	h := strings.ToLower(strings.TrimSpace(configured))
	if h == "" {
		return fallback
	}
	return h
}
