package configuration

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	AdminPort     int           `env:"ADMIN_PORT,default=8080"`
	PactOutputDir string        `env:"PACT_OUTPUT_DIR,default=pacts"` // Default directory pact files are written to
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT,default=5s"`   // Grace period for in-flight requests when a mock server stops
	WaitDelay     time.Duration `env:"WAIT_DELAY,default=500ms"`   // Default delay for the wait endpoint
	WaitDuration  time.Duration `env:"WAIT_DURATION,default=15s"`  // Default duration for the wait endpoint
	MocksFile     string        `env:"MOCKS_FILE"`                 // YAML file of mock servers to start with the admin API
}

func NewFromEnv() (Config, error) {
	ctx := context.Background()

	var config Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// ApplyLogLevel sets the level of the standard logger from the configuration.
func (c Config) ApplyLogLevel() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}
	log.SetLevel(level)
	return nil
}
