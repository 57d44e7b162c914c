package config

import (
	"crypto/rsa"
	"strings"
	"time"

	"flakeview/internal/keypair"
	"flakeview/internal/security"
	"flakeview/internal/snowflake"
	"flakeview/pkg/errors"
	"flakeview/pkg/models"
)

// CredentialStore is satisfied by *security.CredentialManager.
type CredentialStore interface {
	Lookup(name string) (string, bool, error)
}

// Credential sources, in resolution order.
const (
	SourcePrivateKey     = "snowflake.private_key"
	SourcePrivateKeyPath = "snowflake.private_key_path"
	SourceStoredKey      = "credential store: " + security.PrivateKeyCredential
	SourcePassword       = "snowflake.password"
	SourceStoredPassword = "credential store: " + security.PasswordCredential
)

// Snowflake converts the loaded configuration into a connection config,
// resolving exactly one credential. It returns where the credential came from.
// store may be nil.
func Snowflake(cfg *models.Config, store CredentialStore) (snowflake.Config, string, error) {
	sf := cfg.Snowflake
	out := snowflake.Config{
		Account:   strings.TrimSpace(sf.Account),
		User:      strings.TrimSpace(sf.User),
		Role:      sf.Role,
		Warehouse: sf.Warehouse,
		Database:  sf.Database,
		Schema:    sf.Schema,
	}

	var err error
	if out.LoginTimeout, err = duration("snowflake.login_timeout", sf.LoginTimeout); err != nil {
		return out, "", err
	}
	if out.QueryTimeout, err = duration("snowflake.query_timeout", sf.QueryTimeout); err != nil {
		return out, "", err
	}

	key, source, err := resolveKey(sf, store)
	if err != nil {
		return out, "", err
	}
	if key != nil {
		out.PrivateKey = key
		return out, source, nil
	}

	if sf.Password != "" {
		out.Password = sf.Password
		return out, SourcePassword, nil
	}
	if store != nil {
		password, ok, err := store.Lookup(security.PasswordCredential)
		if err != nil {
			return out, "", err
		}
		if ok {
			out.Password = password
			return out, SourceStoredPassword, nil
		}
	}

	// no credential; ValidateConfig reports it
	return out, "", nil
}

func resolveKey(sf models.Snowflake, store CredentialStore) (*rsa.PrivateKey, string, error) {
	if pem := strings.TrimSpace(sf.PrivateKey); pem != "" {
		key, err := keypair.ParsePrivateKey([]byte(unescapeNewlines(pem)))
		if err != nil {
			return nil, "", withSource(err, SourcePrivateKey)
		}
		return key, SourcePrivateKey, nil
	}

	if sf.PrivateKeyPath != "" {
		key, err := keypair.LoadPrivateKeyFile(sf.PrivateKeyPath)
		if err != nil {
			return nil, "", withSource(err, SourcePrivateKeyPath)
		}
		return key, SourcePrivateKeyPath, nil
	}

	if store == nil {
		return nil, "", nil
	}
	pem, ok, err := store.Lookup(security.PrivateKeyCredential)
	if err != nil || !ok {
		return nil, "", err
	}
	key, err := keypair.ParsePrivateKey([]byte(pem))
	if err != nil {
		return nil, "", withSource(err, SourceStoredKey)
	}
	return key, SourceStoredKey, nil
}

// Secrets pasted into single-line variables often carry literal \n.
func unescapeNewlines(s string) string {
	if strings.Contains(s, "\n") {
		return s
	}
	return strings.ReplaceAll(s, `\n`, "\n")
}

func withSource(err error, source string) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.WithContext("source", source)
	}
	return errors.Wrap(err, errors.ErrCodeInvalidKey, "Failed to load private key").
		WithContext("source", source)
}

func duration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, errors.ConfigError(field+" must be a duration such as 30s or 5m", field).
			WithContext("value", value)
	}
	return d, nil
}
