package ldap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSRVDiscovery_EmptyDomain(t *testing.T) {
	discovery := NewSRVDiscovery(nil)

	_, err := discovery.DiscoverServers(context.Background(), "")
	assert.Error(t, err)
}

func TestSRVDiscovery_FallbackServers(t *testing.T) {
	discovery := NewSRVDiscovery(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// .invalid never resolves (RFC 6761)
	servers, err := discovery.DiscoverServers(ctx, "ldapauth.invalid")
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, "ldaps://ldapauth.invalid:636", ServerInfoToURL(servers[0]))
	assert.Equal(t, "ldap://ldapauth.invalid:389", ServerInfoToURL(servers[1]))
	for _, server := range servers {
		assert.Equal(t, "fallback", server.Source)
		assert.NoError(t, ValidateServerInfo(server))
	}
}

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *ServerInfo
		wantErr bool
	}{
		{
			name: "ldaps with port",
			url:  "ldaps://dc1.example.com:3269",
			want: &ServerInfo{Host: "dc1.example.com", Port: 3269, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "ldap without port",
			url:  "ldap://ldap.example.com",
			want: &ServerInfo{Host: "ldap.example.com", Port: 389, Weight: 100, Source: "config"},
		},
		{
			name: "ldaps without port",
			url:  "ldaps://ldap.example.com/",
			want: &ServerInfo{Host: "ldap.example.com", Port: 636, UseTLS: true, Weight: 100, Source: "config"},
		},
		{
			name: "ipv6 literal",
			url:  "ldap://[::1]:1389",
			want: &ServerInfo{Host: "::1", Port: 1389, Weight: 100, Source: "config"},
		},
		{name: "empty", url: "", wantErr: true},
		{name: "unsupported scheme", url: "https://ldap.example.com", wantErr: true},
		{name: "bad port", url: "ldap://ldap.example.com:abc", wantErr: true},
		{name: "port out of range", url: "ldap://ldap.example.com:70000", wantErr: true},
		{name: "missing host", url: "ldap://:389", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	assert.Equal(t, "ldaps://dc1.example.com:636", ServerInfoToURL(&ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true}))
	assert.Equal(t, "ldap://[::1]:389", ServerInfoToURL(&ServerInfo{Host: "::1", Port: 389}))
}

func TestValidateServerInfo(t *testing.T) {
	tests := []struct {
		name    string
		server  *ServerInfo
		wantErr bool
	}{
		{"valid", &ServerInfo{Host: "dc1.example.com", Port: 636, Weight: 100}, false},
		{"nil", nil, true},
		{"empty host", &ServerInfo{Port: 636}, true},
		{"zero port", &ServerInfo{Host: "dc1", Port: 0}, true},
		{"negative priority", &ServerInfo{Host: "dc1", Port: 389, Priority: -1}, true},
		{"negative weight", &ServerInfo{Host: "dc1", Port: 389, Weight: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, ValidateServerInfo(tt.server))
			} else {
				assert.NoError(t, ValidateServerInfo(tt.server))
			}
		})
	}
}

func TestSortServersByPriority(t *testing.T) {
	discovery := NewSRVDiscovery(nil)

	servers := []*ServerInfo{
		{Host: "dc3", Priority: 2, Weight: 50},
		{Host: "dc1", Priority: 1, Weight: 100},
		{Host: "dc2", Priority: 1, Weight: 50},
		{Host: "dc4", Priority: 0, Weight: 100},
	}

	discovery.sortServersByPriority(servers)

	var hosts []string
	for _, s := range servers {
		hosts = append(hosts, s.Host)
	}
	assert.Equal(t, []string{"dc4", "dc1", "dc2", "dc3"}, hosts)
}

func TestTrimDot(t *testing.T) {
	assert.Equal(t, "dc1.example.com", trimDot("dc1.example.com."))
	assert.Equal(t, "dc1.example.com", trimDot("dc1.example.com"))
	assert.Equal(t, "", trimDot(""))
}
