package models

import "context"

type trackingKey struct{}

// WithTrackingNumber attaches the tracking number that prefixes every log line of a request
func WithTrackingNumber(ctx context.Context, tn string) context.Context {
	return context.WithValue(ctx, trackingKey{}, tn)
}

// TrackingNumber returns the request tracking number, or "-" outside a request
func TrackingNumber(ctx context.Context) string {
	tn, _ := ctx.Value(trackingKey{}).(string)
	if tn == "" {
		return "-"
	}
	return tn
}
