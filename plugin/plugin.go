// Package plugin loads service packs: directories that bundle tool server
// definitions, tool policy rules and answer prompts for one or more
// services, so they can be installed by dropping a directory in place.
package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/internal/config"
	"github.com/armatrix/toolhost/mcp"
)

// Plugin represents a loaded service pack.
type Plugin struct {
	// Name is the plugin identifier (derived from directory name).
	Name string `json:"name"`

	// Dir is the absolute path to the plugin directory.
	Dir string `json:"-"`

	Description string `json:"description,omitempty"`

	// Services are the tool servers the plugin provides.
	Services []auth.Service `json:"services,omitempty"`

	// Policy rules are added to the host's tool policy.
	Policy []mcp.Rule `json:"policy,omitempty"`

	// Prompts maps answer categories to system prompts, read from
	// prompts/<category>.md.
	Prompts map[string]string `json:"prompts,omitempty"`
}

// manifest is the on-disk plugin.json / plugin.yaml.
type manifest struct {
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Services    []config.ServiceSettings `json:"services,omitempty" yaml:"services,omitempty"`
	Policy      []mcp.Rule               `json:"policy,omitempty" yaml:"policy,omitempty"`
}

var manifestNames = []string{"plugin.yaml", "plugin.yml", "plugin.jsonc", "plugin.json"}

// DefaultDirs returns the user and project plugin directories.
func DefaultDirs(projectDir string) []string {
	var dirs []string
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".toolhost", "plugins"))
	}
	if projectDir != "" {
		dirs = append(dirs, filepath.Join(projectDir, ".toolhost", "plugins"))
	}
	return dirs
}

// LoadPlugins scans the given directories for plugin definitions.
// Each subdirectory is treated as a plugin. A plugin is identified by
// having a manifest or a prompts/ subdirectory; other directories are
// skipped.
func LoadPlugins(dirs ...string) ([]*Plugin, error) {
	var plugins []*Plugin

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("plugin: read dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(dir, entry.Name())
			p, err := loadPlugin(pluginDir, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("plugin: load %s: %w", entry.Name(), err)
			}
			if p != nil {
				plugins = append(plugins, p)
			}
		}
	}

	return plugins, nil
}

func loadPlugin(dir, name string) (*Plugin, error) {
	p := &Plugin{Name: name, Dir: dir}

	for _, file := range manifestNames {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var m manifest
		if err := config.Decode(data, filepath.Ext(file), &m); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		p.Description = m.Description
		p.Policy = m.Policy
		for _, ss := range m.Services {
			if ss.Disabled {
				continue
			}
			svc, err := ss.Service()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			p.Services = append(p.Services, svc)
		}
		if err := (mcp.Policy{Rules: p.Policy}).Valid(); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		break
	}

	prompts, err := config.LoadPrompts(filepath.Join(dir, "prompts"))
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	if len(prompts) > 0 {
		p.Prompts = prompts
	}

	// Only return if plugin has content
	if len(p.Services) == 0 && len(p.Policy) == 0 && len(p.Prompts) == 0 {
		return nil, nil
	}

	return p, nil
}

// Merge flattens plugins in load order. For prompts of the same category,
// later plugins win.
func Merge(plugins []*Plugin) (services []auth.Service, policy []mcp.Rule, prompts map[string]string) {
	prompts = make(map[string]string)
	for _, p := range plugins {
		services = slices.Concat(services, p.Services)
		policy = slices.Concat(policy, p.Policy)
		for k, v := range p.Prompts {
			prompts[k] = v
		}
	}
	return services, policy, prompts
}
