package notify

import (
	"context"
	"fmt"
	"strings"

	"sessionbook/internal/domain"
)

// Router sends each notification through the channel named by the recipient
// scheme, e.g. "telegram:12345" or "email:alice@example.com".
type Router struct {
	channels map[string]domain.Notifier
}

func NewRouter() *Router {
	return &Router{channels: make(map[string]domain.Notifier)}
}

// Handle registers the notifier for a scheme. A later call replaces it.
func (r *Router) Handle(scheme string, n domain.Notifier) *Router {
	r.channels[strings.TrimSuffix(scheme, ":")] = n
	return r
}

func (r *Router) Send(ctx context.Context, template, recipient string, data map[string]string) (string, error) {
	scheme, _, ok := strings.Cut(recipient, ":")
	if !ok {
		return "", fmt.Errorf("recipient %q has no scheme", recipient)
	}
	n, ok := r.channels[scheme]
	if !ok {
		return "", fmt.Errorf("no notification channel for scheme %q", scheme)
	}
	return n.Send(ctx, template, recipient, data)
}

func address(recipient string) string {
	_, addr, _ := strings.Cut(recipient, ":")
	return addr
}
