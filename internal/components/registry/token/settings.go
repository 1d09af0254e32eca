package token

import (
	"errors"
	"net/url"
)

const (
	DefaultEndpoint  = "https://wichacks.us.auth0.com/oauth/token"
	DefaultAudience  = "wichacks.io"
	DefaultGrantType = "client_credentials"
)

// Settings configures the client-credentials exchange.
type Settings struct {
	Endpoint     string `mapstructure:"endpoint"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Audience     string `mapstructure:"audience"`
	GrantType    string `mapstructure:"grant_type"`
}

// ApplyDefaults fills in the endpoint, audience and grant type.
func (s *Settings) ApplyDefaults() {
	if s.Endpoint == "" {
		s.Endpoint = DefaultEndpoint
	}
	if s.Audience == "" {
		s.Audience = DefaultAudience
	}
	if s.GrantType == "" {
		s.GrantType = DefaultGrantType
	}
}

// Validate rejects settings that cannot produce a token.
func (s *Settings) Validate() error {
	var errs []error
	if s.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}
	if s.ClientSecret == "" {
		errs = append(errs, errors.New("client_secret is required"))
	}
	if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("endpoint must be an absolute URL"))
	}
	return errors.Join(errs...)
}
