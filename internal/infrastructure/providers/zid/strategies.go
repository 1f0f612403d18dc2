package zid

import (
	"context"
	"errors"
	"fmt"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"
)

// Strategy names appear in logs
const (
	StrategyManagerProfileWithAuthorization = "manager_profile_with_authorization"
	StrategyManagerProfileManagerOnly       = "manager_profile_manager_only"
	StrategyStoreProfileProductAPI          = "store_profile_product_api"
)

var errSkipped = errors.New("strategy not applicable")

// ProfileStrategy is one (endpoint, header set) combination for reading the store profile
type ProfileStrategy struct {
	Name  string
	Fetch func(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error)
}

type storeDoc struct {
	ID       httpx.ID `json:"id"`
	UUID     string   `json:"uuid"`
	Title    string   `json:"title"`
	Username string   `json:"username"`
	URL      string   `json:"url"`
	Logo     string   `json:"logo"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Currency string   `json:"currency_code"`
	Language string   `json:"language"`
	Plan     string   `json:"subscription_plan"`
}

type managerProfileResponse struct {
	User struct {
		ID            httpx.ID `json:"id"`
		UUID          string   `json:"uuid"`
		Name          string   `json:"name"`
		Email         string   `json:"email"`
		Mobile        string   `json:"mobile"`
		Authorization string   `json:"authorization"`
		Store         storeDoc `json:"store"`
	} `json:"user"`
}

type storeProfileResponse struct {
	Store storeDoc `json:"store"`
}

func (d storeDoc) toProfile() *domain.StoreProfile {
	return &domain.StoreProfile{
		MerchantID:   d.ID.String(),
		ProviderUUID: d.UUID,
		Name:         d.Title,
		Email:        d.Email,
		Phone:        d.Phone,
		Domain:       d.URL,
		LogoURL:      d.Logo,
		Plan:         d.Plan,
		Currency:     d.Currency,
		Locale:       d.Language,
	}
}

func (a *Adapter) defaultStrategies() []ProfileStrategy {
	return []ProfileStrategy{
		{
			Name: StrategyManagerProfileWithAuthorization,
			Fetch: func(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
				if !tokens.HasAuthorizationToken() {
					return nil, errSkipped
				}
				return a.managerProfile(ctx, tokens, true)
			},
		},
		{
			Name: StrategyManagerProfileManagerOnly,
			Fetch: func(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
				return a.managerProfile(ctx, tokens, false)
			},
		},
		{
			Name:  StrategyStoreProfileProductAPI,
			Fetch: a.storeProfile,
		},
	}
}

func (a *Adapter) managerProfile(ctx context.Context, tokens *domain.TokenSet, withAuthorization bool) (*domain.StoreProfile, error) {
	var resp managerProfileResponse
	err := a.client.Send(ctx, "manager_profile", httpx.Request{
		URL:    a.cfg.APIBaseURL + "/v1/managers/account/profile",
		Header: managerHeader(tokens, withAuthorization),
	}, &resp)
	if err != nil {
		return nil, err
	}

	profile := resp.User.Store.toProfile()
	if profile.MerchantID == "" {
		return nil, fmt.Errorf("profile response has no store id")
	}
	if profile.Email == "" {
		profile.Email = resp.User.Email
	}
	if profile.Phone == "" {
		profile.Phone = resp.User.Mobile
	}
	profile.AuthorizationToken = resp.User.Authorization
	return profile, nil
}

func (a *Adapter) storeProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
	h := managerHeader(tokens, false)
	h.Del("X-Manager-Token")
	h.Set("Access-Token", tokens.AccessToken)

	var resp storeProfileResponse
	err := a.client.Send(ctx, "store_profile", httpx.Request{
		URL:    a.cfg.APIBaseURL + "/v1/managers/store/",
		Header: h,
	}, &resp)
	if err != nil {
		return nil, err
	}

	profile := resp.Store.toProfile()
	if profile.MerchantID == "" {
		return nil, fmt.Errorf("store response has no store id")
	}
	return profile, nil
}

func statusOf(err error) int {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	var terr *domain.TransientProviderError
	if errors.As(err, &terr) {
		return terr.StatusCode
	}
	return 0
}
