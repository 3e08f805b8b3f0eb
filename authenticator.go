// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Authenticator decorates the out-of-band fetches the download and PDF
// strategies make. Browser-side authentication travels on its own via
// replicated cookies; this covers endpoints that additionally want an
// Authorization header.
type Authenticator interface {
	Apply(req *http.Request) error
}

// AuthenticatorConfig describes how to authenticate binary fetches.
type AuthenticatorConfig struct {
	Type string `yaml:"type" json:"type"` // "basic", "bearer", "oauth"

	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// OAuth2 fields. Method is "client_credentials" or "password".
	Method       string   `yaml:"method,omitempty" json:"method,omitempty"`
	TokenURL     string   `yaml:"tokenUrl,omitempty" json:"tokenUrl,omitempty"`
	ClientID     string   `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty" json:"clientSecret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// NewAuthenticator builds an authenticator from config. OAuth token
// acquisition and refresh are handled by the token source; Apply only
// stamps the current token onto the request.
func NewAuthenticator(cfg AuthenticatorConfig) (Authenticator, error) {
	switch strings.ToLower(cfg.Type) {
	case "basic":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("basic auth requires username and password")
		}
		return &basicAuth{username: cfg.Username, password: cfg.Password}, nil

	case "bearer":
		if cfg.Token == "" {
			return nil, fmt.Errorf("bearer auth requires a token")
		}
		return &bearerAuth{token: cfg.Token}, nil

	case "oauth":
		src, err := oauthTokenSource(cfg)
		if err != nil {
			return nil, err
		}
		return &oauthAuth{source: src}, nil

	default:
		return nil, fmt.Errorf("unknown authenticator type '%s'", cfg.Type)
	}
}

func oauthTokenSource(cfg AuthenticatorConfig) (oauth2.TokenSource, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth requires tokenUrl")
	}
	switch cfg.Method {
	case "client_credentials":
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("oauth client_credentials requires clientId and clientSecret")
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return cc.TokenSource(context.Background()), nil

	case "password":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("oauth password grant requires username and password")
		}
		oc := oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
			Scopes:       cfg.Scopes,
		}
		tok, err := oc.PasswordCredentialsToken(context.Background(), cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("oauth password grant: %w", err)
		}
		return oc.TokenSource(context.Background(), tok), nil

	default:
		return nil, fmt.Errorf("oauth method must be 'client_credentials' or 'password', got '%s'", cfg.Method)
	}
}

type basicAuth struct {
	username, password string
}

func (a *basicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}

type bearerAuth struct {
	token string
}

func (a *bearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

type oauthAuth struct {
	source oauth2.TokenSource
}

func (a *oauthAuth) Apply(req *http.Request) error {
	tok, err := a.source.Token()
	if err != nil {
		return fmt.Errorf("fetching oauth token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}
