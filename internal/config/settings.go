// Package config loads host settings from JSON, JSONC and YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/mcp"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid settings")

// Duration is a time.Duration written as "30s", "2m" and so on.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalid, text, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings holds merged configuration from multiple files. Later files
// override earlier ones (user < project < local).
type Settings struct {
	Model         string  `json:"model,omitempty" yaml:"model,omitempty"`
	FallbackModel string  `json:"fallbackModel,omitempty" yaml:"fallbackModel,omitempty"`
	MaxBudgetUSD  float64 `json:"maxBudgetUSD,omitempty" yaml:"maxBudgetUSD,omitempty"`
	LogLevel      string  `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	RequestTimeout   Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`
	HandshakeTimeout Duration `json:"handshakeTimeout,omitempty" yaml:"handshakeTimeout,omitempty"`
	ShutdownGrace    Duration `json:"shutdownGrace,omitempty" yaml:"shutdownGrace,omitempty"`

	// EmptyRetries is a pointer so that an explicit 0 overrides the default.
	EmptyRetries   *int `json:"emptyRetries,omitempty" yaml:"emptyRetries,omitempty"`
	MaxSuggestions int  `json:"maxSuggestions,omitempty" yaml:"maxSuggestions,omitempty"`
	BatchLimit     int  `json:"batchLimit,omitempty" yaml:"batchLimit,omitempty"`

	Services []ServiceSettings `json:"services,omitempty" yaml:"services,omitempty"`

	// Policy rules accumulate across files.
	Policy []mcp.Rule `json:"policy,omitempty" yaml:"policy,omitempty"`

	// PromptDirs hold <category>.md files that replace strategy prompts.
	PromptDirs []string `json:"promptDirs,omitempty" yaml:"promptDirs,omitempty"`

	// PluginDirs are scanned for service packs.
	PluginDirs []string `json:"pluginDirs,omitempty" yaml:"pluginDirs,omitempty"`

	// SessionDir, when set, records answers there.
	SessionDir string `json:"sessionDir,omitempty" yaml:"sessionDir,omitempty"`
}

// ServiceSettings configures one service. Well-known ids need no command:
// the preset fills it in.
type ServiceSettings struct {
	ID       string            `json:"id" yaml:"id"`
	Command  string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args     []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	OAuth    *bool             `json:"oauth,omitempty" yaml:"oauth,omitempty"`
	TokenEnv string            `json:"tokenEnv,omitempty" yaml:"tokenEnv,omitempty"`
	Scopes   []string          `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Disabled bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Service resolves s into an auth.Service, filling gaps from the preset of
// its canonical id.
func (s ServiceSettings) Service() (auth.Service, error) {
	id, _ := auth.Canonical(s.ID)
	if id == "" {
		return auth.Service{}, fmt.Errorf("%w: service without id", ErrInvalid)
	}
	svc, _ := Preset(id)
	svc.ID = id
	if s.Command != "" {
		svc.Server = mcp.ServerConfig{Command: s.Command, Args: s.Args}
	} else if len(s.Args) > 0 {
		svc.Server.Args = s.Args
	}
	if len(s.Env) > 0 {
		env := make(map[string]string, len(svc.Server.Env)+len(s.Env))
		for k, v := range svc.Server.Env {
			env[k] = v
		}
		for k, v := range s.Env {
			env[k] = v
		}
		svc.Server.Env = env
	}
	if s.OAuth != nil {
		svc.OAuth = *s.OAuth
	}
	if s.TokenEnv != "" {
		svc.TokenEnv = s.TokenEnv
	}
	if len(s.Scopes) > 0 {
		svc.Scopes = s.Scopes
	}
	if svc.Server.Command == "" {
		return auth.Service{}, fmt.Errorf("%w: service %q has no command", ErrInvalid, id)
	}
	return svc, nil
}

// ToolPolicy returns the accumulated policy rules.
func (s *Settings) ToolPolicy() mcp.Policy {
	return mcp.Policy{Rules: s.Policy}
}

// EnabledServices resolves every service that is not disabled.
func (s *Settings) EnabledServices() ([]auth.Service, error) {
	var out []auth.Service
	for _, ss := range s.Services {
		if ss.Disabled {
			continue
		}
		svc, err := ss.Service()
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// Validate checks the merged settings.
func (s *Settings) Validate() error {
	var errs []error
	for name, d := range map[string]Duration{
		"requestTimeout":   s.RequestTimeout,
		"handshakeTimeout": s.HandshakeTimeout,
		"shutdownGrace":    s.ShutdownGrace,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s is negative", ErrInvalid, name))
		}
	}
	if s.EmptyRetries != nil && *s.EmptyRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: emptyRetries is negative", ErrInvalid))
	}
	if s.MaxBudgetUSD < 0 {
		errs = append(errs, fmt.Errorf("%w: maxBudgetUSD is negative", ErrInvalid))
	}
	seen := make(map[auth.ServiceID]bool)
	for _, ss := range s.Services {
		id, _ := auth.Canonical(ss.ID)
		if seen[id] {
			errs = append(errs, fmt.Errorf("%w: service %q listed twice", ErrInvalid, id))
		}
		seen[id] = true
		if ss.Disabled {
			continue
		}
		if _, err := ss.Service(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.ToolPolicy().Valid(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// LoadSettings merges settings from the given files. Missing files are
// skipped; unreadable or malformed ones fail with the path in the error.
func LoadSettings(paths ...string) (*Settings, error) {
	merged := &Settings{}
	for _, path := range paths {
		s, err := loadSettingsFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		mergeSettings(merged, s)
	}
	return merged, nil
}

// DefaultSettingsPaths returns the standard search paths: user, then
// project, then project-local, each as YAML, JSONC or JSON.
func DefaultSettingsPaths(projectDir string) []string {
	var dirs []string
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".toolhost"))
	}
	if projectDir != "" {
		dirs = append(dirs, filepath.Join(projectDir, ".toolhost"))
	}

	var paths []string
	for _, dir := range dirs {
		for _, base := range []string{"settings", "settings.local"} {
			for _, ext := range []string{".yaml", ".jsonc", ".json"} {
				paths = append(paths, filepath.Join(dir, base+ext))
			}
		}
	}
	return paths
}

func loadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSettings(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSettings decodes data according to ext: ".yaml" or ".yml" as YAML,
// anything else as JSON with comments and trailing commas allowed.
func ParseSettings(data []byte, ext string) (*Settings, error) {
	var s Settings
	if err := Decode(data, ext, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Decode unmarshals data into v using the format implied by ext.
func Decode(data []byte, ext string, v any) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("parsing json: %w", err)
		}
	}
	return nil
}

func mergeSettings(dst, src *Settings) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.FallbackModel != "" {
		dst.FallbackModel = src.FallbackModel
	}
	if src.MaxBudgetUSD > 0 {
		dst.MaxBudgetUSD = src.MaxBudgetUSD
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.RequestTimeout != 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
	if src.HandshakeTimeout != 0 {
		dst.HandshakeTimeout = src.HandshakeTimeout
	}
	if src.ShutdownGrace != 0 {
		dst.ShutdownGrace = src.ShutdownGrace
	}
	if src.EmptyRetries != nil {
		dst.EmptyRetries = src.EmptyRetries
	}
	if src.MaxSuggestions > 0 {
		dst.MaxSuggestions = src.MaxSuggestions
	}
	if src.BatchLimit > 0 {
		dst.BatchLimit = src.BatchLimit
	}
	for _, svc := range src.Services {
		dst.Services = upsertService(dst.Services, svc)
	}
	dst.Policy = append(dst.Policy, src.Policy...)
	dst.PromptDirs = append(dst.PromptDirs, src.PromptDirs...)
	dst.PluginDirs = append(dst.PluginDirs, src.PluginDirs...)
	if src.SessionDir != "" {
		dst.SessionDir = src.SessionDir
	}
}

// upsertService replaces the entry with the same canonical id or appends.
func upsertService(list []ServiceSettings, svc ServiceSettings) []ServiceSettings {
	id, _ := auth.Canonical(svc.ID)
	for i, existing := range list {
		if eid, _ := auth.Canonical(existing.ID); eid == id {
			list[i] = svc
			return list
		}
	}
	return append(list, svc)
}
