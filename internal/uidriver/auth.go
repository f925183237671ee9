package uidriver

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Options describes a client-credentials grant for targets that sit
// behind an OAuth2-protected gateway
type OAuth2Options struct {
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// Enabled reports whether enough is configured to request a token
func (o OAuth2Options) Enabled() bool {
	return o.TokenURL != "" && o.ClientID != ""
}

// ClientCredentialsTokenSource returns a caching token source for o
func ClientCredentialsTokenSource(ctx context.Context, o OAuth2Options) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	return cfg.TokenSource(ctx)
}
