package other

import (
	"context"
	"net/http"
	"strconv"

	"merchant-connect-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"go.uber.org/multierr"
)

// RequiredEvents is the topic set every generic store must carry
var RequiredEvents = []string{
	"app/uninstalled",
	"orders/create",
	"orders/updated",
	"products/create",
	"products/update",
	"products/delete",
	"customers/create",
	"customers/update",
}

func (a *Adapter) RequiredEvents() []string {
	return RequiredEvents
}

func toSubscription(w goshopify.Webhook) domain.WebhookSubscription {
	return domain.WebhookSubscription{
		ID:        strconv.FormatUint(w.Id, 10),
		Event:     w.Topic,
		TargetURL: w.Address,
		Active:    true,
	}
}

// ListSubscriptions returns the webhooks registered with the app token
func (a *Adapter) ListSubscriptions(ctx context.Context, tokens *domain.TokenSet) ([]domain.WebhookSubscription, error) {
	client, err := a.createClient(tokens.StoreDomain, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	webhooks, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, classify("list_webhooks", err)
	}

	subs := make([]domain.WebhookSubscription, 0, len(webhooks))
	for _, w := range webhooks {
		subs = append(subs, toSubscription(w))
	}
	return subs, nil
}

// DeleteSubscriptions removes every webhook of the app token. Webhooks are scoped
// to the token, so appID is informational.
func (a *Adapter) DeleteSubscriptions(ctx context.Context, tokens *domain.TokenSet, appID string) error {
	client, err := a.createClient(tokens.StoreDomain, tokens.AccessToken)
	if err != nil {
		return err
	}

	webhooks, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return classify("list_webhooks", err)
	}
	if len(webhooks) == 0 {
		return &domain.ProviderError{Provider: domain.ProviderOther, Op: "delete_webhooks", StatusCode: http.StatusNotFound, Body: "no subscriptions"}
	}

	var errs error
	for _, w := range webhooks {
		if err := client.Webhook.Delete(ctx, w.Id); err != nil {
			if classified := classify("delete_webhook", err); !domain.IsNotFound(classified) {
				errs = multierr.Append(errs, classified)
			}
		}
	}

	a.logger.Info().
		Str("app_id", appID).
		Str("shop", tokens.StoreDomain).
		Int("subscriptions", len(webhooks)).
		Msg("Deleted webhook subscriptions")
	return errs
}

// CreateSubscription registers one topic
func (a *Adapter) CreateSubscription(ctx context.Context, tokens *domain.TokenSet, event, targetURL, _ string) (*domain.WebhookSubscription, error) {
	client, err := a.createClient(tokens.StoreDomain, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	created, err := client.Webhook.Create(ctx, goshopify.Webhook{
		Topic:   event,
		Address: targetURL,
		Format:  "json",
	})
	if err != nil {
		return nil, classify("create_webhook", err)
	}

	sub := toSubscription(*created)
	return &sub, nil
}

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 header against the app secret.
// The request body stays readable afterwards.
func (a *Adapter) VerifyWebhook(r *http.Request) bool {
	if a.cfg.APISecret == "" {
		return false
	}
	return a.app.VerifyWebhookRequest(r)
}
