package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/url"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/retry"
	"github.com/go-ozzo/ozzo-validation/v3"
	"github.com/go-ozzo/ozzo-validation/v3/is"
	"go.uber.org/zap"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type DBConfig struct {
	Driver   string `json:"driver"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	// Path is the SQLite database file; empty means in-memory.
	Path string `json:"path"`
}

func (c *DBConfig) ConnectionString() string {
	if c.Driver == DriverSQLite {
		if c.Path == "" {
			return "sqlite://:memory:"
		}
		return "sqlite://" + c.Path
	}
	u := url.URL{
		Scheme: DriverMySQL,
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	return u.String()
}

func (c *DBConfig) Validate() error {
	if err := validation.ValidateStruct(
		c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMySQL, DriverSQLite)),
	); err != nil {
		return err
	}
	if c.Driver == DriverSQLite {
		return nil
	}
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Host, validation.Required, is.Host),
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Database, validation.Required),
	)
}

const (
	PolicyLock    = "lock"
	PolicyScratch = "scratch"
)

type IsolationConfig struct {
	Policy string `json:"policy"`
}

func (c *IsolationConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Policy, validation.Required, validation.In(PolicyLock, PolicyScratch)),
	)
}

type ProvisioningConfig struct {
	// Strict fails the judging attempt on the first provisioning statement
	// rejected by the backend instead of skipping it.
	Strict bool `json:"strict"`
}

type ExecutorConfig struct {
	MaxRows int `json:"max_rows"`
}

func (c *ExecutorConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.MaxRows, validation.Min(0)),
	)
}

const (
	minFetchPeriod   = 100
	minReviewerCount = 1
	defaultBatchSize = 16
)

type ServiceConfig struct {
	FetchPeriod   int `json:"fetch_period"`
	ReviewerCount int `json:"reviewer_count"`
	BatchSize     int `json:"batch_size"`
}

func (c *ServiceConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.FetchPeriod, validation.Required, validation.Min(minFetchPeriod)),
		validation.Field(&c.ReviewerCount, validation.Required, validation.Min(minReviewerCount)),
		validation.Field(&c.BatchSize, validation.Min(0)),
	)
}

func (c *ServiceConfig) FetchInterval() time.Duration {
	return time.Duration(c.FetchPeriod) * time.Millisecond
}

func (c *ServiceConfig) Batch() int {
	if c.BatchSize == 0 {
		return defaultBatchSize
	}
	return c.BatchSize
}

type MetricsConfig struct {
	// Listen is the address serving /metrics; empty disables it.
	Listen string `json:"listen"`
}

func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Listen, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if s == "" {
				return nil
			}
			_, port, err := net.SplitHostPort(s)
			if err != nil {
				return errors.New("must be a host:port address")
			}
			return is.Port.Validate(port)
		})),
	)
}

// RetryConfig controls reconnect attempts to the databases at startup. A
// zero value means retry.DefaultSettings.
type RetryConfig struct {
	InitialBackoff int `json:"initial_backoff_ms"`
	Multiplier     int `json:"multiplier"`
	MaxBackoff     int `json:"max_backoff_ms"`
	MaxRetries     int `json:"max_retries"`
}

func (c *RetryConfig) Settings() retry.Settings {
	if *c == (RetryConfig{}) {
		return retry.DefaultSettings()
	}
	return retry.Settings{
		InitialBackoff: time.Duration(c.InitialBackoff) * time.Millisecond,
		Multiplier:     c.Multiplier,
		MaxBackoff:     time.Duration(c.MaxBackoff) * time.Millisecond,
		MaxRetries:     c.MaxRetries,
	}
}

func (c *RetryConfig) Validate() error {
	return c.Settings().Verify()
}

type JudgesConfig struct {
	LoggerConfig zap.Config `json:"logger"`

	MainDBConfig  DBConfig `json:"main_db"`
	JudgeDBConfig DBConfig `json:"judge_db"`

	IsolationConfig    IsolationConfig    `json:"isolation"`
	ProvisioningConfig ProvisioningConfig `json:"provisioning"`
	ExecutorConfig     ExecutorConfig     `json:"executor"`
	ServiceConfig      ServiceConfig      `json:"service"`
	MetricsConfig      MetricsConfig      `json:"metrics"`
	ConnectRetryConfig RetryConfig        `json:"connect_retry"`
}

// Default returns a configuration with production logging and the lock
// isolation policy; databases still have to be filled in.
func Default() JudgesConfig {
	return JudgesConfig{
		LoggerConfig:    zap.NewProductionConfig(),
		IsolationConfig: IsolationConfig{Policy: PolicyLock},
		ServiceConfig: ServiceConfig{
			FetchPeriod:   1000,
			ReviewerCount: 4,
		},
	}
}

func (c *JudgesConfig) Validate() error {
	if err := c.MainDBConfig.Validate(); err != nil {
		return errors.Wrap(err, "main_db")
	}
	if err := c.JudgeDBConfig.Validate(); err != nil {
		return errors.Wrap(err, "judge_db")
	}
	if err := c.IsolationConfig.Validate(); err != nil {
		return errors.Wrap(err, "isolation")
	}
	if err := c.ExecutorConfig.Validate(); err != nil {
		return errors.Wrap(err, "executor")
	}
	if err := c.ServiceConfig.Validate(); err != nil {
		return errors.Wrap(err, "service")
	}
	if err := c.MetricsConfig.Validate(); err != nil {
		return errors.Wrap(err, "metrics")
	}
	if err := c.ConnectRetryConfig.Validate(); err != nil {
		return errors.Wrap(err, "connect_retry")
	}
	return nil
}

func (c *JudgesConfig) LoadFromFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := c.loadFromJSON(data); err != nil {
			return err
		}
		return c.Validate()
	default:
		return fmt.Errorf("unknown configuration file extension: %s", ext)
	}
}

func (c *JudgesConfig) loadFromJSON(data []byte) error {
	*c = Default()
	return errors.Wrap(json.Unmarshal(data, c), "error decoding configuration")
}

const DefaultConfigFile = "config.json"

func (c *JudgesConfig) LoadDefault() error {
	return c.LoadFromFile(DefaultConfigFile)
}
