package domain

import "context"

// ProviderRequest is the payload sent to the external provider.
type ProviderRequest struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	TemplateID     string         `json:"template_id"`
	TemplateParams map[string]any `json:"template_params"`
	Channel        Channel        `json:"channel"`
	Priority       Priority       `json:"priority"`
}

// ProviderResult is the classified outcome of a provider call: exactly one
// of a successful 2xx response, a non-2xx response, or a transport-level
// error.
type ProviderResult struct {
	OK               bool
	StatusCode       *int
	ResponseBody     []byte
	Error            string
}

// NotificationProvider is the channel-keyed HTTP caller.
type NotificationProvider interface {
	Send(ctx context.Context, req ProviderRequest) ProviderResult
}
