package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid authentication configuration")

// AttributeMap copies one directory attribute onto one local record field.
type AttributeMap struct {
	LDAP  string `mapstructure:"ldap"`
	Model string `mapstructure:"model"`
}

// AttributeMapping is applied in order after every successful bind.
type AttributeMapping []AttributeMap

// Config is built once at startup and shared read-only by the validator,
// synchronizer and authenticator.
type Config struct {
	// AuthenticationKey is the local field whose value is the directory login.
	AuthenticationKey string

	// AutoCreateUser provisions a local record on first successful directory login.
	AutoCreateUser bool

	// UpdatePassword propagates ResetPassword to the directory.
	UpdatePassword bool

	AttributeMapping AttributeMapping
}

// Validate checks the configuration for values the core cannot work with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.AuthenticationKey == "" {
		return fmt.Errorf("%w: authentication key is required", ErrInvalidConfig)
	}
	for i, m := range c.AttributeMapping {
		if m.LDAP == "" || m.Model == "" {
			return fmt.Errorf("%w: attribute mapping %d needs both ldap and model names", ErrInvalidConfig, i)
		}
	}
	return nil
}
