package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/ldapauth/internal/logging"
)

// client implements the Client interface.
type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	logger logging.Logger
}

// NewClient creates a new LDAP client with connection pooling.
func NewClient(ctx context.Context, config *ConnectionConfig, logger logging.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	logger.Debug("Creating new LDAP client", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     string(config.ServiceAuthMethod()),
		"use_tls":         config.UseTLS,
		"max_connections": config.MaxConnections,
	})

	start := time.Now()
	pool, err := NewConnectionPool(ctx, config, logger)
	if err != nil {
		logger.Error("Failed to create connection pool", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	logger.Info("LDAP client created", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"pool_size":   config.MaxConnections,
		"auth_method": string(config.ServiceAuthMethod()),
	})

	return &client{
		pool:   pool,
		config: config,
		logger: logger,
	}, nil
}

// Connect verifies that a service connection can be obtained and used.
func (c *client) Connect(ctx context.Context) error {
	return logging.LogOperation(c.logger, "connection_test", map[string]any{
		"domain": c.config.Domain,
	}, func() error {
		conn, err := c.pool.Get(ctx)
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		defer conn.Close()

		return c.ping(conn)
	})
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// Bind re-binds a pooled service connection with the given credentials.
func (c *client) Bind(ctx context.Context, username, password string) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	// The pooled connection now carries a different identity.
	conn.authenticated = false

	return c.withRetry(ctx, func() error {
		return conn.Conn().Bind(username, password)
	})
}

// BindAs verifies credentials with a simple bind on a dedicated connection.
func (c *client) BindAs(ctx context.Context, dn, password string) error {
	if password == "" {
		// go-ldap refuses empty-password simple binds; report it as rejected credentials.
		return NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("empty password")))
	}

	err := c.withRetry(ctx, func() error {
		conn, err := c.pool.Dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		return conn.Bind(dn, password)
	})
	if err != nil {
		return WrapError("bind", err)
	}

	c.logger.Debug("User bind succeeded", map[string]any{"dn": dn})
	return nil
}

// SearchAs binds as dn on a dedicated connection and searches with that identity.
func (c *client) SearchAs(ctx context.Context, dn, password string, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}
	if password == "" {
		return nil, NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("empty password")))
	}

	var result *ldap.SearchResult
	err := c.withRetry(ctx, func() error {
		conn, err := c.pool.Dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Bind(dn, password); err != nil {
			return err
		}

		result, err = conn.Search(toLDAPSearchRequest(req))
		return err
	})
	if err != nil {
		return nil, WrapError("search", err)
	}

	return toSearchResult(req, result), nil
}

// Search performs a search with the service account.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	searchFields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		c.logger.Error("Failed to get connection for search", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var result *ldap.SearchResult
	err = c.withRetry(ctx, func() error {
		var searchErr error
		result, searchErr = conn.Conn().Search(toLDAPSearchRequest(req))
		return searchErr
	})
	if err != nil {
		if !IsNotFoundError(err) {
			logging.LogLDAPError(c.logger, "search", err, searchFields)
		}
		return nil, WrapError("search", err)
	}

	searchResult := toSearchResult(req, result)
	c.logger.Trace("Search completed", map[string]any{
		"filter":        req.Filter,
		"entries_found": searchResult.Total,
		"has_more":      searchResult.HasMore,
	})
	return searchResult, nil
}

// Modify applies attribute changes with the service account.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	modReq := ldap.NewModifyRequest(req.DN, nil)
	for attr, values := range req.AddAttributes {
		modReq.Add(attr, values)
	}
	for attr, values := range req.ReplaceAttributes {
		modReq.Replace(attr, values)
	}
	for _, attr := range req.DeleteAttributes {
		modReq.Delete(attr, []string{})
	}

	err = c.withRetry(ctx, func() error {
		return conn.Conn().Modify(modReq)
	})
	if err != nil {
		logging.LogLDAPError(c.logger, "modify", err, map[string]any{"dn": req.DN})
		return WrapError("modify", err)
	}

	return nil
}

// PasswordModify sets a new password for dn using the RFC 3062 extended operation.
func (c *client) PasswordModify(ctx context.Context, dn, newPassword string) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = c.withRetry(ctx, func() error {
		_, err := conn.Conn().PasswordModify(ldap.NewPasswordModifyRequest(dn, "", newPassword))
		return err
	})
	if err != nil {
		logging.LogLDAPError(c.logger, "password_modify", err, map[string]any{"dn": dn})
		return WrapError("password modify", err)
	}

	return nil
}

// Ping performs a health check against the root DSE.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

func (c *client) ping(conn *PooledConnection) error {
	searchReq := ldap.NewSearchRequest(
		"", // Empty base DN for root DSE
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false, // Size limit 1, time limit 5 seconds
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)

	_, err := conn.Conn().Search(searchReq)
	return err
}

// Stats returns connection pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry runs operation, retrying retryable failures with exponential backoff.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return err
		}

		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	c.logger.Error("Operation failed after all retries exhausted", map[string]any{
		"total_attempts": c.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return NewConnectionError("operation failed after retries", false, lastErr)
}

func toLDAPSearchRequest(req *SearchRequest) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false, // TypesOnly
		req.Filter,
		req.Attributes,
		nil,
	)
}

func toSearchResult(req *SearchRequest, result *ldap.SearchResult) *SearchResult {
	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
		HasMore: req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit,
	}
}
