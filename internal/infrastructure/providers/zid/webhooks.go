package zid

import (
	"context"
	"net/http"
	"net/url"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"
)

// RequiredEvents is the subscription set every zid store must carry
var RequiredEvents = []string{
	"app.market.application.uninstall",
	"order.create",
	"order.status.update",
	"product.create",
	"product.update",
	"product.delete",
	"customer.create",
	"customer.update",
}

type webhookDoc struct {
	ID        httpx.ID `json:"id"`
	Event     string   `json:"event"`
	TargetURL string   `json:"target_url"`
	Active    *bool    `json:"active"`
}

func (w webhookDoc) toDomain() domain.WebhookSubscription {
	active := true
	if w.Active != nil {
		active = *w.Active
	}
	return domain.WebhookSubscription{
		ID:        w.ID.String(),
		Event:     w.Event,
		TargetURL: w.TargetURL,
		Active:    active,
	}
}

func (a *Adapter) RequiredEvents() []string {
	return RequiredEvents
}

// ListSubscriptions returns every webhook registered for the store
func (a *Adapter) ListSubscriptions(ctx context.Context, tokens *domain.TokenSet) ([]domain.WebhookSubscription, error) {
	var resp struct {
		Webhooks []webhookDoc `json:"webhooks"`
	}
	err := a.client.Send(ctx, "list_webhooks", httpx.Request{
		URL:    a.cfg.APIBaseURL + "/v1/managers/webhooks",
		Header: managerHeader(tokens, true),
	}, &resp)
	if err != nil {
		return nil, err
	}

	subs := make([]domain.WebhookSubscription, 0, len(resp.Webhooks))
	for _, w := range resp.Webhooks {
		subs = append(subs, w.toDomain())
	}
	return subs, nil
}

// DeleteSubscriptions removes all webhooks created by the app subscriber in one call.
// Zid answers 404 when there is nothing to delete.
func (a *Adapter) DeleteSubscriptions(ctx context.Context, tokens *domain.TokenSet, appID string) error {
	return a.client.Send(ctx, "delete_webhooks", httpx.Request{
		Method: http.MethodDelete,
		URL:    a.cfg.APIBaseURL + "/v1/managers/webhooks",
		Query:  url.Values{"subscriber": {appID}},
		Header: managerHeader(tokens, true),
	}, nil)
}

// CreateSubscription subscribes one event to the target URL
func (a *Adapter) CreateSubscription(ctx context.Context, tokens *domain.TokenSet, event, targetURL, appID string) (*domain.WebhookSubscription, error) {
	body := map[string]interface{}{
		"event":       event,
		"target_url":  targetURL,
		"original_id": appID,
		"subscriber":  appID,
	}

	var resp struct {
		Webhook webhookDoc `json:"webhook"`
	}
	err := a.client.Send(ctx, "create_webhook", httpx.Request{
		Method: http.MethodPost,
		URL:    a.cfg.APIBaseURL + "/v1/managers/webhooks",
		JSON:   body,
		Header: managerHeader(tokens, true),
	}, &resp)
	if err != nil {
		return nil, err
	}

	sub := resp.Webhook.toDomain()
	if sub.Event == "" {
		sub.Event = event
	}
	if sub.TargetURL == "" {
		sub.TargetURL = targetURL
	}
	return &sub, nil
}
