// Package snowflake holds the single remote session a deployment runs on.
package snowflake

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"flakeview/internal/observability"
	"flakeview/pkg/errors"
	"github.com/snowflakedb/gosnowflake"
)

const (
	// DefaultLoginTimeout bounds connection establishment.
	DefaultLoginTimeout = 60 * time.Second
	// DefaultQueryTimeout bounds a single statement.
	DefaultQueryTimeout = 5 * time.Minute
)

// Config holds Snowflake connection configuration
type Config struct {
	Account    string
	User       string
	Password   string
	PrivateKey *rsa.PrivateKey
	Role       string
	Warehouse  string
	Database   string
	Schema     string

	LoginTimeout time.Duration
	QueryTimeout time.Duration
}

// KeyPairAuth reports whether the config authenticates with a private key.
func (c Config) KeyPairAuth() bool {
	return c.PrivateKey != nil
}

// DSN builds the driver connection string.
func (c Config) DSN() (string, error) {
	cfg := &gosnowflake.Config{
		Account:      c.Account,
		User:         c.User,
		Role:         c.Role,
		Warehouse:    c.Warehouse,
		Database:     c.Database,
		Schema:       c.Schema,
		LoginTimeout: c.loginTimeout(),
		Application:  "flakeview",
	}

	if c.KeyPairAuth() {
		cfg.Authenticator = gosnowflake.AuthTypeJwt
		cfg.PrivateKey = c.PrivateKey
	} else {
		cfg.Password = c.Password
	}

	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to build Snowflake connection string").
			WithContext("account", c.Account)
	}
	return dsn, nil
}

func (c Config) loginTimeout() time.Duration {
	if c.LoginTimeout > 0 {
		return c.LoginTimeout
	}
	return DefaultLoginTimeout
}

func (c Config) queryTimeout() time.Duration {
	if c.QueryTimeout > 0 {
		return c.QueryTimeout
	}
	return DefaultQueryTimeout
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	required := []struct {
		field string
		value string
	}{
		{"snowflake.account", config.Account},
		{"snowflake.user", config.User},
		{"snowflake.warehouse", config.Warehouse},
		{"snowflake.database", config.Database},
		{"snowflake.schema", config.Schema},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			err := errors.ConfigError(fmt.Sprintf("%s is required", r.field), r.field)
			err.Code = errors.ErrCodeConfigMissing
			return err
		}
	}

	switch {
	case config.PrivateKey == nil && config.Password == "":
		return errors.New(errors.ErrCodeConfigMissing, "No Snowflake credential configured").
			WithSuggestions(
				"Set SNOWFLAKE_PRIVATE_KEY or snowflake.private_key_path for key-pair authentication",
				"Run 'flakeview keygen --store' to create and store a key pair",
				"Or set SNOWFLAKE_PASSWORD",
			)
	case config.PrivateKey != nil && config.Password != "":
		return errors.New(errors.ErrCodeConfigInvalid, "Both a private key and a password are configured").
			WithSuggestions("Configure exactly one Snowflake credential")
	}
	return nil
}

// Service is one Snowflake session. The pool is pinned to a single
// connection so USE statements and session state carry across views.
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
	retry     *errors.RetryConfig
	logger    *observability.Logger
	open      func(driver, dsn string) (*sql.DB, error)
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{
		config: config,
		retry:  errors.DefaultRetryConfig(),
		logger: observability.GetDefaultLogger(),
		open:   sql.Open,
	}
}

// WithLogger sets the logger used for connection events.
func (s *Service) WithLogger(logger *observability.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithRetry overrides the connection retry policy.
func (s *Service) WithRetry(config *errors.RetryConfig) *Service {
	if config != nil {
		s.retry = config
	}
	return s
}

// Connect opens the session. Only connection establishment is retried.
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := ValidateConfig(s.config); err != nil {
		return err
	}

	dsn, err := s.config.DSN()
	if err != nil {
		return err
	}

	db, err := s.open("snowflake", dsn)
	if err != nil {
		return errors.ConnectionError("Failed to open Snowflake connection", err).
			WithContext("account", s.config.Account)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	log := s.logger.WithFields(map[string]interface{}{
		"account":   s.config.Account,
		"user":      s.config.User,
		"warehouse": s.config.Warehouse,
		"key_pair":  s.config.KeyPairAuth(),
	})

	retry := *s.retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.WithError(err).WarnWithFields("Retrying Snowflake connection", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		})
	}

	err = errors.Retry(ctx, &retry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, s.config.loginTimeout())
		defer cancel()
		return s.classifyPingError(db.PingContext(pingCtx))
	})
	if err != nil {
		_ = db.Close()
		log.WithError(err).Error("Snowflake connection failed")
		return err
	}

	s.db = db
	s.connected = true
	log.Info("Connected to Snowflake")
	return nil
}

func (s *Service) classifyPingError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "incorrect username or password"),
		strings.Contains(msg, "jwt token is invalid"),
		strings.Contains(msg, "authentication"):
		suggestions := []string{"Verify the user name and password"}
		if s.config.KeyPairAuth() {
			suggestions = []string{
				"Verify the public key is registered with ALTER USER ... SET RSA_PUBLIC_KEY",
				"Check that the private key matches the registered public key fingerprint",
			}
		}
		return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Snowflake authentication failed").
			WithContext("user", s.config.User).
			WithSuggestions(suggestions...)
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return errors.Wrap(err, errors.ErrCodeConnectionTimeout, "Timed out connecting to Snowflake").
			WithContext("account", s.config.Account)
	default:
		return errors.ConnectionError("Failed to connect to Snowflake", err).
			WithContext("account", s.config.Account).
			AsRecoverable()
	}
}

// ExecContext runs one statement and waits for it to complete.
func (s *Service) ExecContext(ctx context.Context, query string) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake").
			WithSuggestions("Call Connect() before executing SQL")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.queryTimeout())
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.SQLError("Statement failed", query, err).
			WithContext("database", s.config.Database).
			WithContext("schema", s.config.Schema)
	}
	return nil
}

// QueryRowContext runs a single-row query on the session.
func (s *Service) QueryRowContext(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	if !s.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake")
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

// CurrentContext returns the role, warehouse, database and schema the session
// resolved to.
func (s *Service) CurrentContext(ctx context.Context) (map[string]string, error) {
	row, err := s.QueryRowContext(ctx,
		"SELECT CURRENT_ROLE(), CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA()")
	if err != nil {
		return nil, err
	}

	var role, warehouse, database, schema sql.NullString
	if err := row.Scan(&role, &warehouse, &database, &schema); err != nil {
		return nil, errors.SQLError("Failed to read session context", "SELECT CURRENT_ROLE()", err)
	}

	return map[string]string{
		"role":      role.String,
		"warehouse": warehouse.String,
		"database":  database.String,
		"schema":    schema.String,
	}, nil
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "Failed to close Snowflake connection")
	}
	return nil
}

// Connected reports whether Connect succeeded and Close has not been called.
func (s *Service) Connected() bool {
	return s.connected
}
