// Package auth tracks per-service authorization state and gates tool server
// startup on it. Each service moves through unconfigured, pending-auth,
// authenticated-idle and running as its credentials and server process
// come and go.
package auth

import (
	"strings"

	"github.com/armatrix/toolhost/mcp"
)

// ServiceID is a canonical service identifier: lowercase kebab-case, also
// used as the tool server name.
type ServiceID string

// Well-known services.
const (
	GoogleDrive ServiceID = "google-drive"
	GitHub      ServiceID = "github"
	Slack       ServiceID = "slack"
	Notion      ServiceID = "notion"
	Filesystem  ServiceID = "filesystem"
	Git         ServiceID = "git"
)

var aliases = map[string]ServiceID{
	"google-drive": GoogleDrive,
	"google":       GoogleDrive,
	"googledrive":  GoogleDrive,
	"gdrive":       GoogleDrive,
	"drive":        GoogleDrive,
	"github":       GitHub,
	"gh":           GitHub,
	"slack":        Slack,
	"notion":       Notion,
	"filesystem":   Filesystem,
	"fs":           Filesystem,
	"files":        Filesystem,
	"git":          Git,
}

// Canonical maps an informal service name onto its ServiceID. Names are
// matched case-insensitively with spaces and underscores treated as
// hyphens. Unknown names are normalized the same way and reported with
// ok=false.
func Canonical(name string) (id ServiceID, ok bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	if id, ok := aliases[norm]; ok {
		return id, true
	}
	if id, ok := aliases[strings.ReplaceAll(norm, "-", "")]; ok {
		return id, true
	}
	return ServiceID(norm), false
}

// DisplayName returns a human-readable name for well-known services.
func (id ServiceID) DisplayName() string {
	switch id {
	case GoogleDrive:
		return "Google Drive"
	case GitHub:
		return "GitHub"
	case Slack:
		return "Slack"
	case Notion:
		return "Notion"
	case Filesystem:
		return "Filesystem"
	case Git:
		return "Git"
	}
	return string(id)
}

// DefaultTokenEnv returns the environment variable that carries the access
// token: upper snake case plus _ACCESS_TOKEN.
func (id ServiceID) DefaultTokenEnv() string {
	return strings.ToUpper(strings.ReplaceAll(string(id), "-", "_")) + "_ACCESS_TOKEN"
}

// Service describes one external service and the tool server fronting it.
type Service struct {
	ID ServiceID `json:"id" yaml:"id"`

	// Server launches the tool server. The access token is injected into
	// its environment, never its arguments.
	Server mcp.ServerConfig `json:"server" yaml:"server"`

	// OAuth marks services that need client credentials and a valid access
	// token before their server may start. Local services such as the
	// filesystem leave it false.
	OAuth bool `json:"oauth,omitempty" yaml:"oauth,omitempty"`

	// TokenEnv overrides the token variable name.
	TokenEnv string `json:"tokenEnv,omitempty" yaml:"tokenEnv,omitempty"`

	// Scopes are requested from the credential collaborator.
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// TokenVariable returns the environment variable name for the token.
func (s Service) TokenVariable() string {
	if s.TokenEnv != "" {
		return s.TokenEnv
	}
	return s.ID.DefaultTokenEnv()
}

// ServerName is the Supervisor name used for this service's process.
func (s Service) ServerName() string { return string(s.ID) }
