package auth

import "context"

type contextKey string

const deliveryContextKey contextKey = "delivery"

// Delivery identifies the authenticated sender of an Event Grid delivery
type Delivery struct {
	AppID    string
	TenantID string
	Roles    []string
}

// WithDelivery adds the delivery principal to context
func WithDelivery(ctx context.Context, d *Delivery) context.Context {
	return context.WithValue(ctx, deliveryContextKey, d)
}

// FromContext retrieves the delivery principal from context
func FromContext(ctx context.Context) (*Delivery, bool) {
	d, ok := ctx.Value(deliveryContextKey).(*Delivery)
	return d, ok
}

// HasRole checks if the principal was assigned the given app role
func (d *Delivery) HasRole(role string) bool {
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}
