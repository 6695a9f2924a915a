// Package mcp implements the client side of the Model Context Protocol over
// stdio. A Supervisor owns one child process per tool server, frames
// newline-delimited JSON-RPC 2.0 on its pipes and correlates responses to
// pending requests. A Manager aggregates the tools of every live server
// into one catalog and routes calls to the owning process.
package mcp

import (
	"fmt"
	"maps"
	"slices"
)

// ServerConfig describes how to launch a single tool server.
type ServerConfig struct {
	// Command is the executable to spawn.
	Command string `json:"command" yaml:"command"`

	// Args are command-line arguments for the subprocess.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env are extra environment variables for the subprocess. They are
	// appended to the parent environment. Secrets belong here rather than
	// in Args so they stay out of process listings.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Dir is the working directory. Empty means the parent's.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Validate reports ErrInvalidConfig when required fields are missing.
func (c ServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidConfig)
	}
	return nil
}

// WithEnv returns a copy of c with key=value added to its environment.
func (c ServerConfig) WithEnv(key, value string) ServerConfig {
	out := c
	out.Args = slices.Clone(c.Args)
	out.Env = maps.Clone(c.Env)
	if out.Env == nil {
		out.Env = make(map[string]string, 1)
	}
	out.Env[key] = value
	return out
}
