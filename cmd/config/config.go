package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/remote"
	"github.com/mattsolo1/grove-wiki/pkg/search"
	"github.com/mattsolo1/grove-wiki/pkg/service"
	"github.com/mattsolo1/grove-wiki/pkg/session"
)

var cfgFile string

// Config is the decoded CLI configuration.
type Config struct {
	Server   string       `mapstructure:"server"`
	Actor    models.Actor `mapstructure:"actor"`
	DataDir  string       `mapstructure:"data_dir"`
	LogLevel string       `mapstructure:"log_level"`
	Chat     ChatConfig   `mapstructure:"chat"`
	Retry    RetryConfig  `mapstructure:"retry"`
	Index    IndexConfig  `mapstructure:"index"`
}

type ChatConfig struct {
	Transport string `mapstructure:"transport"`
	Session   string `mapstructure:"session"`
}

type RetryConfig struct {
	MaxTries uint `mapstructure:"max_tries"`
}

type IndexConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func InitConfig() {
	cobra.CheckErr(setup(viper.GetViper(), cfgFile))
}

// setup points v at the config file, the WIKI_* environment and defaults.
// A missing default config file is not an error; a missing explicit one is.
func setup(v *viper.Viper, file string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "wiki"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("WIKI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	user := os.Getenv("USER")
	v.SetDefault("server", "http://localhost:8080/api")
	v.SetDefault("actor.id", user)
	v.SetDefault("actor.name", user)
	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "wiki"))
	v.SetDefault("log_level", "warn")
	v.SetDefault("chat.transport", string(remote.ChatSSE))
	v.SetDefault("chat.session", "")
	v.SetDefault("retry.max_tries", remote.DefaultRetryPolicy.MaxTries)
	v.SetDefault("index.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load decodes the global viper settings.
func Load() (*Config, error) {
	return decode(viper.GetViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the engine cannot start without.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("config: server is required")
	}
	if c.Actor.ID == "" {
		return errors.New("config: actor.id is required (set WIKI_ACTOR_ID)")
	}
	if c.Actor.DisplayName == "" {
		c.Actor.DisplayName = c.Actor.ID
	}
	switch remote.ChatTransport(c.Chat.Transport) {
	case remote.ChatSSE, remote.ChatWebsocket:
	default:
		return fmt.Errorf("config: unknown chat.transport %q", c.Chat.Transport)
	}
	return nil
}

// NewLogger returns a stderr logger at the configured level.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	return logger, nil
}

// InitService wires the remote client, the knowledge index and the engine.
func InitService(cfg *Config, logger *logrus.Logger, confirm session.Confirmer) (*service.Service, error) {
	entry := logrus.NewEntry(logger)

	client, err := remote.NewHTTPClient(cfg.Server,
		remote.WithChatTransport(remote.ChatTransport(cfg.Chat.Transport)),
		remote.WithLogger(entry),
	)
	if err != nil {
		return nil, err
	}
	policy := remote.DefaultRetryPolicy
	policy.MaxTries = cfg.Retry.MaxTries

	var index *search.Index
	if cfg.Index.Enabled {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		index, err = search.NewIndex(filepath.Join(cfg.DataDir, "index.db"))
		if err != nil {
			return nil, fmt.Errorf("open knowledge index: %w", err)
		}
		entry.WithField("full_text", index.FullText()).Debug("Opened knowledge index")
	}

	svc, err := service.New(service.Config{
		Actor:       cfg.Actor,
		ChatSession: cfg.Chat.Session,
	}, service.Deps{
		Remote:    remote.WithRetry(client, policy, entry),
		Confirmer: confirm,
		Index:     index,
		Logger:    entry,
	})
	if err != nil {
		if index != nil {
			_ = index.Close()
		}
		return nil, err
	}
	return svc, nil
}

func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wiki/config.yaml)")
}
