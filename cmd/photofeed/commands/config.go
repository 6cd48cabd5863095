package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/photofeed/internal/app"
)

const (
	// envPrefix marks the environment variables read as configuration.
	envPrefix = "PHOTOFEED_"

	// configFlag names the flag selecting the config file. It is not itself
	// a config key.
	configFlag = "config"

	// defaultConfigFile is looked up in the user config directory when no
	// --config is given.
	defaultConfigFile = "config.toml"
)

// defaultConfigPath returns <UserConfigDir>/photofeed/config.toml if it exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "photofeed", defaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// envKey maps an environment variable name to its config key. A double
// underscore separates sections:
//
//	PHOTOFEED_OAUTH__CLIENT_ID   → oauth.client_id
//	PHOTOFEED_API__PER_PAGE      → api.per_page
//	PHOTOFEED_AUTH__KEYRING_USER → auth.keyring_user
//	PHOTOFEED_LOG_LEVEL          → log_level
func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ToLower(strings.ReplaceAll(name, "__", "."))
}

// flagKey maps a CLI flag name to its config key. A double dash separates
// sections and single dashes become underscores:
//
//	--oauth--redirect-uri → oauth.redirect_uri
//	--auth--keyring-user  → auth.keyring_user
//	--telemetry--exporter → telemetry.exporter
//	--log-format          → log_format
func flagKey(name string) string {
	key := strings.ReplaceAll(name, "--", ".")
	return strings.ReplaceAll(key, "-", "_")
}

// loadConfig builds the configuration from, in increasing precedence, the
// config file, PHOTOFEED_ environment variables and CLI flags. Defaults fill
// whatever is still unset and the result is validated.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(name, value string) (string, any) {
			return envKey(name), value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// flagValues collects the flags set on cmd or any of its parents, keyed by
// config key. Unset flags are left out so their defaults do not override the
// file or the environment.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if name == configFlag || !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			values[flagKey(name)] = value
		}
	}
	return values
}
