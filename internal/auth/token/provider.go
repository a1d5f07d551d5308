// Package token resolves provider session tokens for profiles.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	providerdomain "github.com/smallbiznis/posbridge/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrMissingIdentity = errors.New("missing_login_identity")

// AuthResolver finds the login capability of a provider type.
type AuthResolver interface {
	Authenticator(providerType string) (providerdomain.Authenticator, error)
}

// TokenStore persists a token obtained by login.
type TokenStore interface {
	SaveToken(ctx context.Context, id string, token string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Settings config.SettingsProvider
	Auth     AuthResolver
	Store    TokenStore
}

type Provider struct {
	log      *zap.Logger
	clock    clock.Clock
	settings config.SettingsProvider
	auth     AuthResolver
	store    TokenStore
}

func New(p Params) *Provider {
	return &Provider{
		log:      p.Log.Named("auth.token"),
		clock:    p.Clock,
		settings: p.Settings,
		auth:     p.Auth,
		store:    p.Store,
	}
}

// EnsureToken returns the manual token when set, otherwise tries a TOTP
// auto-login. Failures are logged and reported as needsCredentials.
func (p *Provider) EnsureToken(ctx context.Context, profile profiledomain.Profile) (string, bool) {
	if profile.HasManualToken() {
		return profile.ManualToken, false
	}
	if !profile.HasLoginBundle() {
		return "", true
	}

	log := p.logger(ctx, profile)
	code, err := totp.GenerateCode(strings.ToUpper(profile.NormalizedTotpSecret()), p.clock.Now())
	if err != nil {
		log.Error("Auto-login failed for profile "+profile.Name, zap.Error(fmt.Errorf("generate totp: %w", err)))
		return "", true
	}

	token, err := p.login(ctx, profile, code)
	if err != nil {
		log.Error("Auto-login failed for profile "+profile.Name, zap.Error(err))
		return "", true
	}

	log.Info("Auto-login succeeded for profile " + profile.Name)
	return token, false
}

// LoginWithUserProvidedOtp logs in with a code typed by an operator. Errors
// are returned to the caller.
func (p *Provider) LoginWithUserProvidedOtp(ctx context.Context, profile profiledomain.Profile, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", &providerdomain.AuthError{Message: "verification code is required"}
	}
	token, err := p.login(ctx, profile, code)
	if err != nil {
		return "", err
	}
	p.logger(ctx, profile).Info("Manual login succeeded for profile " + profile.Name)
	return token, nil
}

func (p *Provider) login(ctx context.Context, profile profiledomain.Profile, code string) (string, error) {
	auth, err := p.auth.Authenticator(profile.ProviderType)
	if err != nil {
		return "", err
	}
	baseURL := p.settings.Get().Providers.BaseURL(profile.ProviderType)

	var token string
	switch {
	case strings.TrimSpace(profile.LoginEmail) != "":
		token, err = auth.LoginWithEmail(ctx, baseURL, strings.TrimSpace(profile.LoginEmail), profile.LoginPassword, code)
	case strings.TrimSpace(profile.LoginPhone) != "":
		token, err = auth.LoginWithPhone(ctx, baseURL, strings.TrimSpace(profile.LoginPhone), profile.LoginPassword, code)
	default:
		return "", ErrMissingIdentity
	}
	if err != nil {
		return "", err
	}

	if err := p.store.SaveToken(ctx, profile.Key(), token); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	return token, nil
}

func (p *Provider) logger(ctx context.Context, profile profiledomain.Profile) *zap.Logger {
	ctx = obscontext.WithProfileID(ctx, profile.Key())
	ctx = obscontext.WithOperation(ctx, logger.OpAuth)
	return logger.WithContext(ctx, p.log)
}
