package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/mcp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	retries := 2
	data, err := json.Marshal(Settings{
		Model:          "claude-sonnet-4-5",
		MaxBudgetUSD:   5.0,
		RequestTimeout: Duration(10 * time.Second),
		EmptyRetries:   &retries,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	result, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", result.Model)
	assert.Equal(t, 5.0, result.MaxBudgetUSD)
	assert.Equal(t, 10*time.Second, result.RequestTimeout.Std())
	require.NotNil(t, result.EmptyRetries)
	assert.Equal(t, 2, *result.EmptyRetries)
}

func TestLoadSettings_JSONC(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.jsonc", `{
		// primary model
		"model": "claude-haiku-4-5",
		"handshakeTimeout": "45s", /* slow servers */
		"services": [
			{"id": "gdrive"},
		],
	}`)

	result, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", result.Model)
	assert.Equal(t, 45*time.Second, result.HandshakeTimeout.Std())
	require.Len(t, result.Services, 1)
	assert.Equal(t, "gdrive", result.Services[0].ID)
}

func TestLoadSettings_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", `
model: claude-opus-4-6
shutdownGrace: 5s
emptyRetries: 0
services:
  - id: github
  - id: Local Notes
    command: /usr/local/bin/notes-mcp
    args: [--stdio]
    oauth: false
policy:
  - pattern: "github.delete_*"
    decision: deny
`)

	result, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-6", result.Model)
	assert.Equal(t, 5*time.Second, result.ShutdownGrace.Std())
	require.NotNil(t, result.EmptyRetries)
	assert.Equal(t, 0, *result.EmptyRetries)
	require.Len(t, result.Services, 2)
	assert.Equal(t, []string{"--stdio"}, result.Services[1].Args)
	require.Len(t, result.Policy, 1)
	assert.Equal(t, mcp.Deny, result.Policy[0].Decision)
	assert.Equal(t, mcp.Deny, result.ToolPolicy().Evaluate("github.delete_repo"))
}

func TestLoadSettings_MergeOrder(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
model: claude-haiku-4-5
maxSuggestions: 3
services:
  - id: slack
  - id: github
policy:
  - pattern: "**"
    decision: allow
`)
	project := writeFile(t, dir, "project.json", `{
		"model": "claude-sonnet-4-5",
		"services": [{"id": "gh", "tokenEnv": "GH_TOKEN"}],
		"policy": [{"pattern": "slack.send_*", "decision": "deny"}]
	}`)

	result, err := LoadSettings(user, project)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", result.Model, "project should override user")
	assert.Equal(t, 3, result.MaxSuggestions, "user value preserved when project doesn't set it")
	require.Len(t, result.Services, 2, "services merge by canonical id")
	assert.Equal(t, "gh", result.Services[1].ID)
	assert.Equal(t, "GH_TOKEN", result.Services[1].TokenEnv)
	assert.Len(t, result.Policy, 2, "policy rules accumulate")
}

func TestLoadSettings_MissingFileSkipped(t *testing.T) {
	result, err := LoadSettings("/nonexistent/path.json")
	require.NoError(t, err)
	assert.Equal(t, "", result.Model)
}

func TestLoadSettings_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", "not json")

	_, err := LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadSettings_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "requestTimeout: soon\n")

	_, err := LoadSettings(path)
	require.Error(t, err)
}

func TestDefaultSettingsPaths(t *testing.T) {
	paths := DefaultSettingsPaths("/myproject")
	assert.Contains(t, paths, filepath.Join("/myproject", ".toolhost", "settings.yaml"))
	assert.Contains(t, paths, filepath.Join("/myproject", ".toolhost", "settings.local.jsonc"))

	last := paths[len(paths)-1]
	assert.Equal(t, filepath.Join("/myproject", ".toolhost", "settings.local.json"), last, "project-local loads last")
}

func TestServiceSettings_Service(t *testing.T) {
	oauthOff := false
	tests := []struct {
		name  string
		in    ServiceSettings
		check func(t *testing.T, svc auth.Service)
	}{
		{
			name: "preset by alias",
			in:   ServiceSettings{ID: "Google Drive"},
			check: func(t *testing.T, svc auth.Service) {
				assert.Equal(t, auth.GoogleDrive, svc.ID)
				assert.Equal(t, "npx", svc.Server.Command)
				assert.True(t, svc.OAuth)
				assert.Equal(t, "GOOGLE_DRIVE_ACCESS_TOKEN", svc.TokenVariable())
			},
		},
		{
			name: "preset with overrides",
			in: ServiceSettings{
				ID: "github", Env: map[string]string{"GITHUB_HOST": "ghe.example.com"},
				TokenEnv: "GH_TOKEN", Scopes: []string{"repo"},
			},
			check: func(t *testing.T, svc auth.Service) {
				assert.Equal(t, "ghe.example.com", svc.Server.Env["GITHUB_HOST"])
				assert.Equal(t, "GH_TOKEN", svc.TokenVariable())
				assert.Equal(t, []string{"repo"}, svc.Scopes)
			},
		},
		{
			name: "custom service",
			in:   ServiceSettings{ID: "local_notes", Command: "notes-mcp", OAuth: &oauthOff},
			check: func(t *testing.T, svc auth.Service) {
				assert.Equal(t, auth.ServiceID("local-notes"), svc.ID)
				assert.Equal(t, "notes-mcp", svc.Server.Command)
				assert.False(t, svc.OAuth)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tt.in.Service()
			require.NoError(t, err)
			tt.check(t, svc)
		})
	}
}

func TestServiceSettings_PresetNotMutated(t *testing.T) {
	_, err := ServiceSettings{ID: "github", Args: []string{"--read-only"}}.Service()
	require.NoError(t, err)

	svc, ok := Preset(auth.GitHub)
	require.True(t, ok)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-github"}, svc.Server.Args)
}

func TestServiceSettings_Errors(t *testing.T) {
	_, err := ServiceSettings{}.Service()
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ServiceSettings{ID: "unknown-thing"}.Service()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	neg := -1
	s := &Settings{
		RequestTimeout: Duration(-time.Second),
		EmptyRetries:   &neg,
		Services: []ServiceSettings{
			{ID: "slack"},
			{ID: "Slack"},
			{ID: "mystery"},
			{ID: "disabled-mystery", Disabled: true},
		},
		Policy: []mcp.Rule{{Pattern: "[", Decision: mcp.Deny}},
	}
	err := s.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, mcp.ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "requestTimeout")
	assert.Contains(t, msg, "emptyRetries")
	assert.Contains(t, msg, `"slack" listed twice`)
	assert.Contains(t, msg, `"mystery" has no command`)
	assert.NotContains(t, msg, "disabled-mystery")

	assert.NoError(t, (&Settings{Services: []ServiceSettings{{ID: "git"}}}).Validate())
}

func TestEnabledServices(t *testing.T) {
	s := &Settings{Services: []ServiceSettings{
		{ID: "github"},
		{ID: "slack", Disabled: true},
		{ID: "fs"},
	}}
	services, err := s.EnabledServices()
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, auth.GitHub, services[0].ID)
	assert.Equal(t, auth.Filesystem, services[1].ID)
}

func TestLoadPrompts(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeFile(t, dir1, "code.md", "Write Go.\n")
	writeFile(t, dir1, "math.md", "Show steps.")
	writeFile(t, dir1, "empty.md", "   \n")
	writeFile(t, dir1, "readme.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir1, "subdir.md"), 0o755))
	writeFile(t, dir2, "code.md", "Write Rust.")

	prompts, err := LoadPrompts(dir1, "/nonexistent/dir", dir2)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"code": "Write Rust.",
		"math": "Show steps.",
	}, prompts)
}

func TestLoadSettings_PluginAndSessionDirs(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", "pluginDirs: [/opt/packs]\nsessionDir: /var/sessions\n")
	project := writeFile(t, dir, "project.json", `{"pluginDirs": ["./packs"]}`)

	result, err := LoadSettings(user, project)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/packs", "./packs"}, result.PluginDirs)
	assert.Equal(t, "/var/sessions", result.SessionDir)
}

func TestDecode(t *testing.T) {
	type doc struct {
		Name string `json:"name" yaml:"name"`
	}
	tests := []struct {
		ext  string
		data string
	}{
		{".yaml", "name: pack\n"},
		{".YML", "name: pack\n"},
		{".jsonc", "{\n  // comment\n  \"name\": \"pack\",\n}"},
		{"", `{"name": "pack"}`},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			var d doc
			require.NoError(t, Decode([]byte(tt.data), tt.ext, &d))
			assert.Equal(t, "pack", d.Name)
		})
	}

	var d doc
	assert.Error(t, Decode([]byte("{"), ".json", &d))
	assert.Error(t, Decode([]byte("name: [\n"), ".yaml", &d))
}
