package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"pantry_pirate_radio"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type WorkerOptions struct {
	Count        int           `env:"RECONCILER_WORKER_COUNT" envDefault:"4"`
	PollInterval time.Duration `env:"RECONCILER_POLL_INTERVAL" envDefault:"1s"`
	MaxAttempts  int           `env:"RECONCILER_JOB_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay   time.Duration `env:"RECONCILER_JOB_RETRY_DELAY" envDefault:"30s"`
	StaleRunning time.Duration `env:"RECONCILER_JOB_STALE_RUNNING" envDefault:"5m"`
}

type ReconcilerOptions struct {
	// Two location reports closer than this (in degrees) are the same place.
	CoordinateTolerance float64 `env:"RECONCILER_COORDINATE_TOLERANCE" envDefault:"0.0001"`
	CreatedBy           string  `env:"RECONCILER_CREATED_BY" envDefault:"reconciler"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
	Port    int    `env:"PROMETHEUS_METRICS_PORT" envDefault:"9090"`
}

type Configuration struct {
	Database   DatabaseOptions
	Worker     WorkerOptions
	Reconciler ReconcilerOptions
	Prometheus PrometheusOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`

	logger *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(c.LogrusLogLevel())
	if c.GoAppEnvironment == Production {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}
