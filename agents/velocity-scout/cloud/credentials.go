package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"velocity-scout/shared/storage"
)

// ErrMissingClientSecret means no usable credential is cached and the client
// secret file needed to authorize again is not configured or does not exist.
var ErrMissingClientSecret = errors.New("client secret file not found")

// Scopes requested for cloud sync. drive.file only grants access to files
// this application created.
var Scopes = []string{drive.DriveFileScope}

// Credential is the serialized authorization for the cloud file store. It
// carries the client identity alongside the token so a refresh needs nothing
// but the credential itself.
type Credential struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	TokenURI     string    `json:"token_uri"`
	Scopes       []string  `json:"scopes,omitempty"`
}

func newCredential(cfg *oauth2.Config, tok *oauth2.Token) *Credential {
	c := &Credential{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURI:     cfg.Endpoint.TokenURL,
		Scopes:       cfg.Scopes,
	}
	c.setToken(tok)
	return c
}

// ParseCredential decodes a credential stored by Serialize.
func ParseCredential(data string) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if c.Token == "" && c.RefreshToken == "" {
		return nil, fmt.Errorf("credential holds no token")
	}
	return &c, nil
}

// Serialize encodes the credential for the settings table.
func (c *Credential) Serialize() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}
	return string(data), nil
}

// OAuthToken returns the oauth2 form of the cached token.
func (c *Credential) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.Token,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// OAuthConfig returns a config able to refresh this credential.
func (c *Credential) OAuthConfig() *oauth2.Config {
	tokenURI := c.TokenURI
	if tokenURI == "" {
		tokenURI = google.Endpoint.TokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: tokenURI,
		},
	}
}

func (c *Credential) setToken(tok *oauth2.Token) {
	c.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.TokenType = tok.TokenType
	c.Expiry = tok.Expiry
}

// SettingsStore is the part of the record store credentials live in.
type SettingsStore interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Authorizer obtains a brand-new token through user interaction.
type Authorizer interface {
	Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// CredentialStore loads, refreshes, authorizes and persists the single
// cached cloud credential.
type CredentialStore struct {
	settings   SettingsStore
	secretPath string
	authorizer Authorizer
}

func NewCredentialStore(settings SettingsStore, secretPath string, authorizer Authorizer) *CredentialStore {
	return &CredentialStore{
		settings:   settings,
		secretPath: secretPath,
		authorizer: authorizer,
	}
}

// Acquire returns a credential that is ready to use. A valid cached
// credential is returned unchanged. An expired one with a refresh token is
// refreshed. Otherwise the user is asked to authorize again using the client
// secret file. Any refreshed or new credential is persisted before Acquire
// returns.
func (s *CredentialStore) Acquire(ctx context.Context) (*Credential, error) {
	cred, err := s.load()
	if err != nil {
		return nil, err
	}

	if cred != nil {
		tok := cred.OAuthToken()
		if tok.Valid() {
			log.Debug().Time("expiry", tok.Expiry).Msg("Using cached credential")
			return cred, nil
		}
		if tok.RefreshToken != "" {
			log.Info().Msg("Cached credential expired, refreshing")
			refreshed, err := cred.OAuthConfig().TokenSource(ctx, tok).Token()
			if err != nil {
				return nil, fmt.Errorf("failed to refresh credential: %w", err)
			}
			cred.setToken(refreshed)
			if err := s.save(cred); err != nil {
				return nil, err
			}
			return cred, nil
		}
	}

	if s.secretPath == "" || !storage.FileExists(s.secretPath) {
		return nil, fmt.Errorf("%w: %q. Please select the correct credentials.json file again in settings", ErrMissingClientSecret, s.secretPath)
	}

	data, err := os.ReadFile(s.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file: %w", err)
	}

	log.Info().Str("client_secret", s.secretPath).Msg("Authorization required, starting interactive flow")
	tok, err := s.authorizer.Authorize(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	cred = newCredential(cfg, tok)
	if err := s.save(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// TokenSource returns a token source for cred that persists any refresh it
// performs back to the settings table.
func (s *CredentialStore) TokenSource(ctx context.Context, cred *Credential) oauth2.TokenSource {
	return &tokenSaver{
		ctx:   ctx,
		store: s,
		cred:  cred,
	}
}

// Reset forgets the cached credential and the client secret path.
func (s *CredentialStore) Reset() error {
	return ResetCredentials(s.settings)
}

// ResetCredentials clears the cached credential and the configured client
// secret path, forcing a full authorization on the next sync.
func ResetCredentials(settings SettingsStore) error {
	if err := settings.SetSetting(storage.SettingAuthToken, ""); err != nil {
		return err
	}
	return settings.SetSetting(storage.SettingCredentialsPath, "")
}

func (s *CredentialStore) load() (*Credential, error) {
	raw, ok, err := s.settings.GetSetting(storage.SettingAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	cred, err := ParseCredential(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable cached credential")
		return nil, nil
	}
	return cred, nil
}

func (s *CredentialStore) save(cred *Credential) error {
	raw, err := cred.Serialize()
	if err != nil {
		return err
	}
	if err := s.settings.SetSetting(storage.SettingAuthToken, raw); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// tokenSaver refreshes the credential on demand and saves every new access
// token, so refreshes during a long transfer survive a crash.
type tokenSaver struct {
	ctx   context.Context
	store *CredentialStore
	cred  *Credential
	mu    sync.Mutex
}

func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	current := ts.cred.OAuthToken()
	newToken, err := ts.cred.OAuthConfig().TokenSource(ts.ctx, current).Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != current.AccessToken {
		log.Info().Msg("Token refreshed, saving to settings")
		ts.cred.setToken(newToken)
		if err := ts.store.save(ts.cred); err != nil {
			log.Warn().Err(err).Msg("Failed to save refreshed token")
		}
	}

	return newToken, nil
}
