package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/ldapauth/internal/logging"
)

// Connection pool limits.
const (
	// MaxConnectionPoolLimit is the maximum allowed connections in a pool.
	//
	// User binds never use pooled connections, so the pool only has to carry
	// concurrent service-account searches and password updates.
	MaxConnectionPoolLimit = 100

	// maxAuthAge is how long a pooled service bind is trusted before re-binding.
	maxAuthAge = 5 * time.Minute
)

// connectionPool implements ConnectionPool interface.
type connectionPool struct {
	logger      logging.Logger
	config      *ConnectionConfig
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery

	// Statistics
	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time

	// Health checking
	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a new connection pool. Connections are created lazily.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig, logger logging.Logger) (ConnectionPool, error) {
	start := time.Now()
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	logger.Debug("Creating new connection pool", nil)

	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool := &connectionPool{
		logger:      logger,
		config:      config,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   NewSRVDiscovery(logger),
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}

	if err := pool.discoverServers(ctx); err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	logger.Debug("Connection pool created", map[string]any{
		"duration": time.Since(start).String(),
		"servers":  len(pool.servers),
	})
	return pool, nil
}

// discoverServers discovers available servers.
func (p *connectionPool) discoverServers(ctx context.Context) error {
	var servers []*ServerInfo

	if len(p.config.LDAPURLs) > 0 {
		p.logger.Debug("Using configured LDAP URLs", map[string]any{
			"urls": p.config.LDAPURLs,
		})
		for _, url := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(url)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", url, err)
			}
			servers = append(servers, server)
		}
	} else if p.config.Domain != "" {
		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	} else {
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()

	return nil
}

// Get retrieves a connection from the pool.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	p.mu.RUnlock()

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			if p.config.HasServiceAccount() && p.needsReAuthentication(conn) {
				if err := p.authenticateConnection(ctx, conn); err != nil {
					p.closeConnection(conn)
					break
				}
			}
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			p.logger.Trace("Pool event", map[string]any{"event": "connection_reused"})
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.createConnection(ctx)
}

// Dial opens a dedicated connection to the first reachable server. The connection
// is not bound; it is used for end-user binds so pooled service binds stay intact.
func (p *connectionPool) Dial(ctx context.Context) (*ldap.Conn, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	servers := p.servers
	p.mu.RUnlock()

	var lastErr error
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := p.dialServer(server)
		if err != nil {
			lastErr = err
			atomic.AddInt64(&p.totalErrors, 1)
			continue
		}
		return conn, nil
	}

	return nil, NewConnectionError("failed to connect to any LDAP server", true, lastErr)
}

// createConnection creates a new connection with retry logic.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.createSingleConnection(ctx, server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				p.logger.Warn("Pool event", map[string]any{
					"event":  "connection_failed",
					"server": ServerInfoToURL(server),
					"error":  err.Error(),
				})
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// dialServer connects to a server and negotiates TLS according to the configuration.
func (p *connectionPool) dialServer(server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)

	var conn *ldap.Conn
	var err error

	if server.UseTLS {
		conn, err = ldap.DialURL(url, ldap.DialWithTLSConfig(p.config.TLSConfig))
	} else {
		conn, err = ldap.DialURL(url)
		if err == nil && p.config.UseTLS && !p.config.SkipTLS {
			if tlsErr := conn.StartTLS(p.config.TLSConfig); tlsErr != nil {
				conn.Close()
				err = tlsErr
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	conn.SetTimeout(p.config.Timeout)
	return conn, nil
}

// createSingleConnection creates a service-account connection to a specific server.
func (p *connectionPool) createSingleConnection(ctx context.Context, server *ServerInfo) (*PooledConnection, error) {
	conn, err := p.dialServer(server)
	if err != nil {
		return nil, err
	}

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasServiceAccount() {
		if err := p.authenticateConnection(ctx, pooledConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to authenticate connection to %s: %w", ServerInfoToURL(server), err)
		}
	}

	return pooledConn, nil
}

// authenticateConnection authenticates a pooled connection using the configured method.
func (p *connectionPool) authenticateConnection(ctx context.Context, pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	authMethod := p.config.ServiceAuthMethod()
	var err error

	switch authMethod {
	case AuthMethodSimpleBind:
		if p.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = pooledConn.conn.Bind(p.config.Username, p.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(pooledConn.conn, p.config, pooledConn.serverInfo, p.logger)
	case AuthMethodExternal:
		err = pooledConn.conn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", authMethod)
	}

	if err != nil {
		pooledConn.authenticated = false
		pooledConn.authTime = time.Time{}
		return err
	}

	pooledConn.authenticated = true
	pooledConn.authTime = time.Now()
	return nil
}

// needsReAuthentication determines if a connection needs to be re-authenticated.
func (p *connectionPool) needsReAuthentication(conn *PooledConnection) bool {
	if conn == nil || !conn.authenticated {
		return true
	}
	return time.Since(conn.authTime) > maxAuthAge
}

// returnConnection returns a connection to the pool.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	if p.isConnectionHealthy(conn) && time.Since(conn.lastUsed) < p.config.MaxIdleTime {
		select {
		case p.connections <- conn:
		default:
			// Pool is full
			p.closeConnection(conn)
		}
	} else {
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection is healthy.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy {
		return false
	}

	if conn.conn.IsClosing() {
		return false
	}

	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}

	if p.config.HasServiceAccount() && !conn.authenticated {
		return false
	}

	return true
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
		conn.authTime = time.Time{}
	}
}

// Close closes all connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	p.logger.Debug("Pool event", map[string]any{"event": "pool_closed"})
	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idle := 0
	if !p.closed {
		idle = len(p.connections)
	}

	return PoolStats{
		Total:   idle + int(atomic.LoadInt64(&p.activeConns)),
		Active:  atomic.LoadInt64(&p.activeConns),
		Idle:    idle,
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// HealthCheck reports whether the pool is operational.
func (p *connectionPool) HealthCheck(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.New("pool is closed")
	}
	return nil
}

// startHealthChecker starts the periodic health checker.
func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				p.performHealthCheck()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck tests up to three idle connections.
func (p *connectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	var toCheck []*PooledConnection

healthCheckLoop:
	for range 3 {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				break healthCheckLoop
			}
			toCheck = append(toCheck, conn)
		default:
			break healthCheckLoop
		}
	}

	for _, conn := range toCheck {
		if p.testConnection(ctx, conn) {
			// returnConnection decrements the active counter
			atomic.AddInt64(&p.activeConns, 1)
			p.returnConnection(conn)
		} else {
			p.logger.Warn("Pool event", map[string]any{"event": "health_check_failed"})
			p.closeConnection(conn)
		}
	}
}

// testConnection tests if a connection is working and properly authenticated.
func (p *connectionPool) testConnection(ctx context.Context, conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	if p.config.HasServiceAccount() && p.needsReAuthentication(conn) {
		if err := p.authenticateConnection(ctx, conn); err != nil {
			return false
		}
	}

	searchReq := ldap.NewSearchRequest(
		"", // Root DSE
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)

	if _, err := conn.conn.Search(searchReq); err != nil {
		conn.authenticated = false
		conn.authTime = time.Time{}
		return false
	}

	return true
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}

	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}

	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}
