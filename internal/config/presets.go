package config

import (
	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/mcp"
)

// Presets are the built-in launch definitions of well-known services.
var Presets = map[auth.ServiceID]auth.Service{
	auth.GoogleDrive: {
		Server: mcp.ServerConfig{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-gdrive"}},
		OAuth:  true,
		Scopes: []string{"https://www.googleapis.com/auth/drive.readonly"},
	},
	auth.GitHub: {
		Server:   mcp.ServerConfig{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-github"}},
		OAuth:    true,
		TokenEnv: "GITHUB_PERSONAL_ACCESS_TOKEN",
		Scopes:   []string{"repo", "read:user"},
	},
	auth.Slack: {
		Server:   mcp.ServerConfig{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-slack"}},
		OAuth:    true,
		TokenEnv: "SLACK_BOT_TOKEN",
		Scopes:   []string{"channels:history", "channels:read", "users:read"},
	},
	auth.Notion: {
		Server:   mcp.ServerConfig{Command: "npx", Args: []string{"-y", "@notionhq/notion-mcp-server"}},
		OAuth:    true,
		TokenEnv: "NOTION_TOKEN",
	},
	auth.Filesystem: {
		Server: mcp.ServerConfig{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem", "."}},
	},
	auth.Git: {
		Server: mcp.ServerConfig{Command: "uvx", Args: []string{"mcp-server-git"}},
	},
}

// Preset returns a copy of the built-in definition for id.
func Preset(id auth.ServiceID) (auth.Service, bool) {
	svc, ok := Presets[id]
	if !ok {
		return auth.Service{}, false
	}
	svc.ID = id
	svc.Server.Args = append([]string(nil), svc.Server.Args...)
	svc.Scopes = append([]string(nil), svc.Scopes...)
	return svc, true
}
