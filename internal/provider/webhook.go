package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/insider-one/notification-service/internal/config"
	"github.com/insider-one/notification-service/internal/domain"
)

// WebhookProvider implements domain.NotificationProvider as a thin,
// channel-keyed HTTP caller. Routing is purely configuration: each
// channel maps to a {base_url, api_key} pair, and the call is always
// POST {base_url}/send. No mock or per-channel branching logic lives here.
type WebhookProvider struct {
	client  *http.Client
	routing map[domain.Channel]config.ChannelProviderConfig
}

// NewWebhookProvider builds a provider client from the per-channel routing
// table and the shared provider call timeout.
func NewWebhookProvider(cfg config.ProviderConfig) *WebhookProvider {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &WebhookProvider{
		client: &http.Client{Timeout: timeout},
		routing: map[domain.Channel]config.ChannelProviderConfig{
			domain.ChannelEmail: cfg.Email,
			domain.ChannelSMS:   cfg.SMS,
			domain.ChannelPush:  cfg.Push,
		},
	}
}

// Send dispatches a payload to the channel's configured provider and
// classifies the outcome.
func (p *WebhookProvider) Send(ctx context.Context, req domain.ProviderRequest) domain.ProviderResult {
	routeCfg, ok := p.routing[req.Channel]
	if !ok || routeCfg.BaseURL == "" {
		return domain.ProviderResult{OK: false, Error: "Provider base URL not configured"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.ProviderResult{OK: false, Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	url := strings.TrimRight(routeCfg.BaseURL, "/") + "/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.ProviderResult{OK: false, Error: fmt.Sprintf("failed to build request: %v", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if routeCfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+routeCfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.ProviderResult{OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	statusCode := resp.StatusCode

	if statusCode >= 200 && statusCode < 300 {
		return domain.ProviderResult{OK: true, StatusCode: &statusCode, ResponseBody: respBody}
	}

	return domain.ProviderResult{OK: false, StatusCode: &statusCode, ResponseBody: respBody, Error: "non-2xx provider response"}
}
