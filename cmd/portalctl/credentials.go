package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"portal/internal/adapters/api"
)

// credentials is what login leaves on disk for later commands.
type credentials struct {
	APIURL string     `json:"api_url"`
	Email  string     `json:"email"`
	Role   string     `json:"role"`
	Tokens api.Tokens `json:"tokens"`
}

var errNotSignedIn = errors.New("not signed in: run portalctl login first")

func loadCredentials(path string) (credentials, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return credentials{}, errNotSignedIn
	}
	if err != nil {
		return credentials{}, err
	}
	var c credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return credentials{}, fmt.Errorf("read %s: %w", path, err)
	}
	if c.Tokens.AccessToken == "" {
		return credentials{}, errNotSignedIn
	}
	return c, nil
}

// saveCredentials writes c readable only by the current user.
func saveCredentials(path string, c credentials) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// fileTokenSaver writes rotated tokens back to the credentials file so the
// next command starts from the live refresh token.
type fileTokenSaver struct {
	path  string
	creds credentials
}

func (f *fileTokenSaver) SaveTokens(_ context.Context, _ string, t api.Tokens) error {
	f.creds.Tokens = t
	return saveCredentials(f.path, f.creds)
}

// apiSession opens the client and session stored by login. The --api flag
// wins over the stored URL only when it was set explicitly.
func apiSession(g *globals, apiFlagChanged bool) (*api.Services, *api.Session, error) {
	creds, err := loadCredentials(g.credentials)
	if err != nil {
		return nil, nil, err
	}
	base := creds.APIURL
	if apiFlagChanged || base == "" {
		base = g.apiURL
	}
	client, err := api.New(api.Config{BaseURL: base})
	if err != nil {
		return nil, nil, err
	}
	saver := &fileTokenSaver{path: g.credentials, creds: creds}
	return api.NewServices(client), api.NewSession("portalctl", creds.Tokens, saver), nil
}
