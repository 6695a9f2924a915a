package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in     string
		want   ServiceID
		wantOK bool
	}{
		{"google-drive", GoogleDrive, true},
		{"Google Drive", GoogleDrive, true},
		{"googledrive", GoogleDrive, true},
		{"google_drive", GoogleDrive, true},
		{"google", GoogleDrive, true},
		{"GDrive", GoogleDrive, true},
		{"gh", GitHub, true},
		{"GitHub", GitHub, true},
		{" slack ", Slack, true},
		{"fs", Filesystem, true},
		{"Dropbox Business", ServiceID("dropbox-business"), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Canonical(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestTokenVariable(t *testing.T) {
	assert.Equal(t, "GOOGLE_DRIVE_ACCESS_TOKEN", GoogleDrive.DefaultTokenEnv())
	assert.Equal(t, "GITHUB_ACCESS_TOKEN", Service{ID: GitHub}.TokenVariable())
	assert.Equal(t, "GITHUB_PERSONAL_ACCESS_TOKEN", Service{ID: GitHub, TokenEnv: "GITHUB_PERSONAL_ACCESS_TOKEN"}.TokenVariable())
	assert.Equal(t, "Google Drive", GoogleDrive.DisplayName())
	assert.Equal(t, "custom", ServiceID("custom").DisplayName())
}

func TestMemoryCredentials(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCredentials()

	assert.False(t, m.HasClientCredentials(ctx, GitHub))
	_, ok := m.ValidAccessToken(ctx, GitHub, nil)
	assert.False(t, ok)

	m.SetClient(GitHub, &oauth2.Config{})
	assert.False(t, m.HasClientCredentials(ctx, GitHub), "empty client id is not a credential")

	m.SetClient(GitHub, &oauth2.Config{ClientID: "abc"})
	assert.True(t, m.HasClientCredentials(ctx, GitHub))
	cfg, ok := m.Client(GitHub)
	assert.True(t, ok)
	assert.Equal(t, "abc", cfg.ClientID)

	m.SetToken(GitHub, &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)})
	tok, ok := m.ValidAccessToken(ctx, GitHub, nil)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	m.SetToken(GitHub, &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(-time.Minute)})
	_, ok = m.ValidAccessToken(ctx, GitHub, nil)
	assert.False(t, ok)

	// Zero expiry never expires.
	m.SetToken(GitHub, &oauth2.Token{AccessToken: "forever"})
	_, ok = m.ValidAccessToken(ctx, GitHub, nil)
	assert.True(t, ok)

	assert.NoError(t, m.RemoveCredentials(ctx, GitHub))
	assert.False(t, m.HasClientCredentials(ctx, GitHub))
	_, ok = m.ValidAccessToken(ctx, GitHub, nil)
	assert.False(t, ok)
}

func TestMemoryCredentialsScopes(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCredentials()

	tok := (&oauth2.Token{AccessToken: "t"}).WithExtra(map[string]any{"scope": "repo read:org"})
	m.SetToken(GitHub, tok)

	_, ok := m.ValidAccessToken(ctx, GitHub, []string{"repo"})
	assert.True(t, ok)
	_, ok = m.ValidAccessToken(ctx, GitHub, []string{"repo", "read:org"})
	assert.True(t, ok)
	_, ok = m.ValidAccessToken(ctx, GitHub, []string{"admin:org"})
	assert.False(t, ok)

	m.SetToken(Slack, &oauth2.Token{AccessToken: "t"})
	_, ok = m.ValidAccessToken(ctx, Slack, []string{"channels:read"})
	assert.True(t, ok, "tokens without a recorded scope are assumed to cover the request")
}

func TestCredentialsFromEnv(t *testing.T) {
	ctx := context.Background()
	env := map[string]string{
		"GITHUB_PERSONAL_ACCESS_TOKEN": " ghp_123 ",
		"SLACK_ACCESS_TOKEN":           "",
		"FILESYSTEM_ACCESS_TOKEN":      "ignored",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	services := []Service{
		{ID: GitHub, OAuth: true, TokenEnv: "GITHUB_PERSONAL_ACCESS_TOKEN"},
		{ID: Slack, OAuth: true},
		{ID: Notion, OAuth: true},
		{ID: Filesystem},
	}

	m := CredentialsFromEnv(services, lookup)

	tok, ok := m.ValidAccessToken(ctx, GitHub, []string{"repo"})
	assert.True(t, ok)
	assert.Equal(t, "ghp_123", tok)
	assert.True(t, m.HasClientCredentials(ctx, GitHub))

	assert.False(t, m.HasClientCredentials(ctx, Slack), "blank values are ignored")
	assert.False(t, m.HasClientCredentials(ctx, Notion))
	assert.False(t, m.HasClientCredentials(ctx, Filesystem), "local services need no token")
}
