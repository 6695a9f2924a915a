// Command toolhost inspects and drives stdio tool servers from the shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/armatrix/toolhost"
	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/internal/config"
	"github.com/armatrix/toolhost/plugin"
	"github.com/armatrix/toolhost/session"
)

var rootCmd = &cobra.Command{
	Use:   "toolhost",
	Short: "toolhost - run and query stdio tool servers",
	Long: `toolhost launches the tool servers of your connected services, lists their tools,
calls them directly, and answers questions grounded in their data.

Settings are read from ~/.toolhost and ./.toolhost (settings.yaml, settings.jsonc or
settings.json, plus settings.local.*). Service packs are loaded from the plugins/
directory next to them. Access tokens for OAuth services are taken from the
environment variable named by each service's tokenEnv.`,
	SilenceUsage: true,
}

var (
	configPaths []string
	logLevel    string
	modelFlag   string
	jsonOutput  bool
)

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&configPaths, "config", nil, "Settings files to load (default: standard search paths)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: settings or warn)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Claude model override")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(serversCmd, toolsCmd, callCmd, askCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// settingsPaths returns --config or the default search paths.
func settingsPaths() []string {
	if len(configPaths) > 0 {
		return configPaths
	}
	wd, _ := os.Getwd()
	return toolhost.DefaultSettingsPaths(wd)
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(settingsPaths()...)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

// sessionStore opens the configured session directory, or the default one.
func sessionStore(settings *config.Settings) (*session.FileStore, error) {
	dir := settings.SessionDir
	if dir == "" {
		var err error
		if dir, err = session.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return session.NewFileStore(dir)
}

// baseOptions are applied to every Host before the command's own options.
var baseOptions []toolhost.Option

// newHost builds a Host from settings, flags and the environment. Extra
// options are applied last.
func newHost(extra ...toolhost.Option) (*toolhost.Host, error) {
	paths := settingsPaths()
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	services, err := settings.EnabledServices()
	if err != nil {
		return nil, err
	}
	wd, _ := os.Getwd()
	pluginDirs := plugin.DefaultDirs(wd)
	plugins, err := plugin.LoadPlugins(pluginDirs...)
	if err != nil {
		return nil, err
	}
	// Plugin services need their tokens too.
	pluginServices, _, _ := plugin.Merge(plugins)
	services = slices.Concat(pluginServices, services)

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := []toolhost.Option{
		toolhost.WithSettingSources(paths...),
		toolhost.WithCredentials(auth.CredentialsFromEnv(services, os.LookupEnv)),
		toolhost.WithLogger(logger),
		toolhost.WithPluginDirs(pluginDirs...),
	}
	if modelFlag != "" {
		opts = append(opts, toolhost.WithModel(anthropic.Model(modelFlag)))
	}
	return toolhost.New(slices.Concat(opts, baseOptions, extra)...)
}

// newLogger writes text logs to stderr. --log-level wins over settings.
func newLogger(configured string) (*slog.Logger, error) {
	name := logLevel
	if name == "" {
		name = configured
	}
	level := slog.LevelWarn
	if name != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
			return nil, fmt.Errorf("invalid log level %q", name)
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
