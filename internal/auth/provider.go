// Package auth supplies the authorized HTTP client used by the Drive backend.
//
// The provider follows a fixed lifecycle: load the stored token, validate it,
// refresh it when expired, and persist whatever the refresh produced. Only
// when no usable token exists does it fall back to interactive authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/andresuchdata/imgsync/pkg/logger"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Kind is the credential type found in the credentials JSON.
type Kind string

const (
	KindServiceAccount Kind = "service_account"
	KindInstalled      Kind = "installed"
	KindWeb            Kind = "web"
)

// AuthorizeFunc runs the interactive consent flow and returns a fresh token.
type AuthorizeFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

type Options struct {
	CredentialsFile string
	// CredentialsJSON takes precedence over CredentialsFile when set.
	CredentialsJSON string
	Scopes          []string
	Store           TokenStore
	Authorize       AuthorizeFunc
}

// Provider builds authorized HTTP clients for Google APIs.
type Provider struct {
	opts Options
}

func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts}
}

// HTTPClient returns a client whose requests carry a valid access token.
// It is meant to be called once per run.
func (p *Provider) HTTPClient(ctx context.Context) (*http.Client, error) {
	raw, err := p.credentials()
	if err != nil {
		return nil, err
	}

	kind, err := DetectKind(raw)
	if err != nil {
		return nil, err
	}

	if kind == KindServiceAccount {
		cfg, err := google.JWTConfigFromJSON(raw, p.opts.Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
		}
		return cfg.Client(ctx), nil
	}

	cfg, err := google.ConfigFromJSON(raw, p.opts.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	src, err := p.tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

func (p *Provider) tokenSource(ctx context.Context, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	if p.opts.Store == nil {
		return nil, fmt.Errorf("auth: token store is required for %s credentials", KindInstalled)
	}

	tok, err := p.opts.Store.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		tok = nil
	case err != nil:
		logger.Log.Warn().Err(err).Msg("stored token unreadable, re-authorizing")
		tok = nil
	}

	// A token that can neither be used nor refreshed is as good as none.
	if tok != nil && !tok.Valid() && tok.RefreshToken == "" {
		tok = nil
	}

	if tok == nil {
		if p.opts.Authorize == nil {
			return nil, fmt.Errorf("auth: no stored token and no interactive authorizer")
		}
		tok, err = p.opts.Authorize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("authorization failed: %w", err)
		}
		if err := p.opts.Store.Save(tok); err != nil {
			return nil, err
		}
	}

	base := cfg.TokenSource(ctx, tok)
	fresh, err := base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	src := &savingTokenSource{base: base, store: p.opts.Store, last: tok.AccessToken}
	if err := src.persist(fresh); err != nil {
		return nil, err
	}
	return src, nil
}

func (p *Provider) credentials() ([]byte, error) {
	if p.opts.CredentialsJSON != "" {
		return []byte(p.opts.CredentialsJSON), nil
	}
	if p.opts.CredentialsFile == "" {
		return nil, fmt.Errorf("auth: no credentials configured")
	}
	raw, err := os.ReadFile(p.opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	return raw, nil
}

// DetectKind reports which credential flow raw belongs to.
func DetectKind(raw []byte) (Kind, error) {
	var creds struct {
		Type      string          `json:"type"`
		Installed json.RawMessage `json:"installed"`
		Web       json.RawMessage `json:"web"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", fmt.Errorf("invalid credentials json: %w", err)
	}

	switch {
	case creds.Type == string(KindServiceAccount):
		return KindServiceAccount, nil
	case len(creds.Installed) > 0:
		return KindInstalled, nil
	case len(creds.Web) > 0:
		return KindWeb, nil
	}
	return "", fmt.Errorf("unsupported credentials type %q", creds.Type)
}

// savingTokenSource persists every rotated token it hands out.
type savingTokenSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if err := s.persist(tok); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to persist refreshed token")
	}
	return tok, nil
}

func (s *savingTokenSource) persist(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken == s.last {
		return nil
	}
	if err := s.store.Save(tok); err != nil {
		return err
	}
	s.last = tok.AccessToken
	logger.Log.Debug().Time("expiry", tok.Expiry).Msg("token refreshed and saved")
	return nil
}
