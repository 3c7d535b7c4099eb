package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/taleweave/backend/internal/config"
)

var (
	// ErrUnverified indicates the presented credential is missing, malformed,
	// expired, or otherwise failed verification against the provider.
	ErrUnverified = errors.New("credential could not be verified")
	// ErrIdentityNotFound indicates the provider has no identity for the subject.
	ErrIdentityNotFound = errors.New("identity not found at provider")
)

// Profile is the provider's current view of an identity.
type Profile struct {
	Subject    string
	GivenName  string
	FamilyName string
	Email      string
	Picture    string
}

// Provider validates caller credentials and manages identities upstream.
type Provider interface {
	// Resolve verifies the bearer credential and fetches the identity's
	// current profile from the provider.
	Resolve(ctx context.Context, credential string) (Profile, error)
	// DeleteIdentity removes the identity from the provider.
	DeleteIdentity(ctx context.Context, subject string) error
}

// OIDCProvider talks to an OIDC identity provider discovered from its issuer
// URL. Management calls go through a client-credentials authenticated client.
type OIDCProvider struct {
	verifier    *oidc.IDTokenVerifier
	userInfoURL string
	httpClient  *http.Client
	adminClient *http.Client
	adminURL    string
}

// NewOIDCProvider discovers the issuer's endpoints and prepares verification
// and management clients.
func NewOIDCProvider(ctx context.Context, cfg config.IdentityConfig) (*OIDCProvider, error) {
	if strings.TrimSpace(cfg.IssuerURL) == "" {
		return nil, fmt.Errorf("identity provider: issuer URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	var discovered struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&discovered); err != nil {
		return nil, fmt.Errorf("read provider metadata: %w", err)
	}
	if discovered.UserInfoURL == "" {
		return nil, fmt.Errorf("identity provider: issuer advertises no userinfo endpoint")
	}

	adminClient := http.DefaultClient
	if cfg.AdminTokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.AdminClientID,
			ClientSecret: cfg.AdminClientSecret,
			TokenURL:     cfg.AdminTokenURL,
		}
		adminClient = cc.Client(ctx)
	}

	return &OIDCProvider{
		verifier:    provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		userInfoURL: discovered.UserInfoURL,
		httpClient:  http.DefaultClient,
		adminClient: adminClient,
		adminURL:    strings.TrimSuffix(cfg.AdminURL, "/"),
	}, nil
}

// Resolve verifies the credential's signature and claims, then fetches the
// subject's current profile from the userinfo endpoint. The token's embedded
// claims are deliberately not trusted for profile data; the point of the
// round trip is freshness.
func (p *OIDCProvider) Resolve(ctx context.Context, credential string) (Profile, error) {
	token, err := p.verifier.Verify(ctx, credential)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnverified, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Profile{}, ErrUnverified
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, ErrIdentityNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Profile{}, fmt.Errorf("userinfo returned %s: %s", resp.Status, body)
	}

	var claims struct {
		Subject    string `json:"sub"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Email      string `json:"email"`
		Picture    string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}

	if claims.Subject == "" || claims.Subject != token.Subject {
		return Profile{}, ErrUnverified
	}

	return Profile{
		Subject:    claims.Subject,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Email:      claims.Email,
		Picture:    claims.Picture,
	}, nil
}

// DeleteIdentity removes the identity through the provider's management API.
func (p *OIDCProvider) DeleteIdentity(ctx context.Context, subject string) error {
	if p.adminURL == "" {
		return fmt.Errorf("identity provider: management API not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		p.adminURL+"/users/"+url.PathEscape(subject), nil)
	if err != nil {
		return fmt.Errorf("build delete identity request: %w", err)
	}

	resp, err := p.adminClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", subject, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrIdentityNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("delete identity %s: provider returned %s", subject, resp.Status)
	}

	return nil
}

var _ Provider = (*OIDCProvider)(nil)
