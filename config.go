package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvProduction  = "production"
	EnvTesting     = "testing"
	EnvDevelopment = "development"
)

// Config is built once at process start and passed to whatever issues or
// verifies vouchers.
type Config struct {
	EnvName string

	ActivationTokenIssuer string `env:"ACTIVATION_TOKEN_ISSUER,required"`
	ActivationTokenKeyID  string `env:"ACTIVATION_TOKEN_KEY_ID,required"`
	ActivationTokenSecret string `env:"ACTIVATION_TOKEN_SECRET,required"`

	AuthorizationTokenIssuer string `env:"AUTHORIZATION_TOKEN_ISSUER,required"`
	AuthorizationTokenKeyID  string `env:"AUTHORIZATION_TOKEN_KEY_ID,required"`
	AuthorizationTokenSecret string `env:"AUTHORIZATION_TOKEN_SECRET,required"`

	DatabaseURL         string `env:"DATABASE_URL,required"`
	DatabaseMaxPoolSize int    `env:"DATABASE_MAX_POOL_SIZE"`

	MailerDomain       string `env:"MAILER_DOMAIN,required"`
	MailerSender       string `env:"MAILER_SENDER,required"`
	MailerSMTPHostname string `env:"MAILER_SMTP_HOSTNAME,required"`
	MailerSMTPUsername string `env:"MAILER_SMTP_USERNAME,required"`
	MailerSMTPPassword string `env:"MAILER_SMTP_PASSWORD,required"`

	QueueURL         string `env:"QUEUE_URL,required"`
	QueueMaxPoolSize int    `env:"QUEUE_MAX_POOL_SIZE"`
}

type poolDefaults struct {
	database int
	queue    int
}

// pool sizes must be >= 2 under testing, the pool is shared between the
// server and a client.
var environmentPoolDefaults = map[string]poolDefaults{
	EnvProduction:  {database: 12, queue: 8},
	EnvTesting:     {database: 2, queue: 2},
	EnvDevelopment: {database: 4, queue: 4},
}

// LoadConfig reads the configuration of envName from the process environment
func LoadConfig(ctx context.Context, envName string) (*Config, error) {
	return LoadConfigWith(ctx, envName, envconfig.OsLookuper())
}

// LoadConfigWith reads the configuration of envName from lookuper. The
// testing environment reads TEST_ prefixed variables.
func LoadConfigWith(ctx context.Context, envName string, lookuper envconfig.Lookuper) (*Config, error) {
	defaults, ok := environmentPoolDefaults[envName]
	if !ok {
		return nil, goerrors.New("invalid config name", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"config_name": envName})
	}

	if envName == EnvTesting {
		lookuper = envconfig.PrefixLookuper("TEST_", lookuper)
	}

	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithMetadata(map[string]any{"config_name": envName})
	}

	cfg.EnvName = envName
	if cfg.DatabaseMaxPoolSize <= 0 {
		cfg.DatabaseMaxPoolSize = defaults.database
	}
	if cfg.QueueMaxPoolSize <= 0 {
		cfg.QueueMaxPoolSize = defaults.queue
	}

	return cfg, nil
}

// ActivationKeys returns the key material activation vouchers are signed with
func (c *Config) ActivationKeys() KeyMaterial {
	return KeyMaterial{
		Issuer: c.ActivationTokenIssuer,
		KeyID:  c.ActivationTokenKeyID,
		Secret: []byte(c.ActivationTokenSecret),
	}
}

// AuthorizationKeys returns the key material authorization vouchers are signed with
func (c *Config) AuthorizationKeys() KeyMaterial {
	return KeyMaterial{
		Issuer: c.AuthorizationTokenIssuer,
		KeyID:  c.AuthorizationTokenKeyID,
		Secret: []byte(c.AuthorizationTokenSecret),
	}
}
