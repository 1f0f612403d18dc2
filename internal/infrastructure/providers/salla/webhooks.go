package salla

import (
	"context"
	"net/http"
	"net/url"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"

	"go.uber.org/multierr"
)

// RequiredEvents is the subscription set every salla store must carry
var RequiredEvents = []string{
	"app.uninstalled",
	"app.store.authorize",
	"order.created",
	"order.updated",
	"product.created",
	"product.updated",
	"product.deleted",
	"customer.created",
	"customer.updated",
}

type webhookDoc struct {
	ID     httpx.ID `json:"id"`
	Name   string   `json:"name"`
	Event  string   `json:"event"`
	URL    string   `json:"url"`
	Active *bool    `json:"active"`
}

func (w webhookDoc) toDomain() domain.WebhookSubscription {
	active := true
	if w.Active != nil {
		active = *w.Active
	}
	return domain.WebhookSubscription{
		ID:        w.ID.String(),
		Event:     w.Event,
		TargetURL: w.URL,
		Active:    active,
	}
}

func (a *Adapter) RequiredEvents() []string {
	return RequiredEvents
}

// ListSubscriptions returns every webhook registered for the merchant
func (a *Adapter) ListSubscriptions(ctx context.Context, tokens *domain.TokenSet) ([]domain.WebhookSubscription, error) {
	var resp struct {
		Data []webhookDoc `json:"data"`
	}
	err := a.client.Send(ctx, "list_webhooks", httpx.Request{
		URL:    a.cfg.APIBaseURL + "/webhooks",
		Header: a.authHeader(tokens),
	}, &resp)
	if err != nil {
		return nil, err
	}

	subs := make([]domain.WebhookSubscription, 0, len(resp.Data))
	for _, w := range resp.Data {
		subs = append(subs, w.toDomain())
	}
	return subs, nil
}

// DeleteSubscriptions unsubscribes every webhook of the app. Salla scopes webhooks
// to the app token, so appID is only used for logging.
func (a *Adapter) DeleteSubscriptions(ctx context.Context, tokens *domain.TokenSet, appID string) error {
	subs, err := a.ListSubscriptions(ctx, tokens)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return &domain.ProviderError{Provider: domain.ProviderSalla, Op: "delete_webhooks", StatusCode: http.StatusNotFound, Body: "no subscriptions"}
	}

	var errs error
	for _, s := range subs {
		err := a.client.Send(ctx, "delete_webhook", httpx.Request{
			Method: http.MethodDelete,
			URL:    a.cfg.APIBaseURL + "/webhooks/unsubscribe",
			Query:  url.Values{"id": {s.ID}},
			Header: a.authHeader(tokens),
		}, nil)
		if err != nil && !domain.IsNotFound(err) {
			errs = multierr.Append(errs, err)
		}
	}

	a.logger.Info().
		Str("app_id", appID).
		Int("subscriptions", len(subs)).
		Int("failed", len(multierr.Errors(errs))).
		Msg("Deleted webhook subscriptions")
	return errs
}

// CreateSubscription subscribes one event to the target URL
func (a *Adapter) CreateSubscription(ctx context.Context, tokens *domain.TokenSet, event, targetURL, appID string) (*domain.WebhookSubscription, error) {
	body := map[string]interface{}{
		"name":    appID + " " + event,
		"event":   event,
		"url":     targetURL,
		"version": 2,
	}

	var resp struct {
		Data webhookDoc `json:"data"`
	}
	err := a.client.Send(ctx, "create_webhook", httpx.Request{
		Method: http.MethodPost,
		URL:    a.cfg.APIBaseURL + "/webhooks/subscribe",
		JSON:   body,
		Header: a.authHeader(tokens),
	}, &resp)
	if err != nil {
		return nil, err
	}

	sub := resp.Data.toDomain()
	if sub.Event == "" {
		sub.Event = event
	}
	if sub.TargetURL == "" {
		sub.TargetURL = targetURL
	}
	return &sub, nil
}
