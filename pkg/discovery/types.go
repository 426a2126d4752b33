package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of a notification endpoint.
	ServiceType = "_fhirsub._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when ServiceInfo.Port is zero.
	DefaultPort = 8080

	// ProtocolVersion is advertised in the ver TXT record.
	ProtocolVersion = "1"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default time Find waits for an answer.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyPath    = "path"
	TXTKeyVersion = "ver"
	TXTKeyTLS     = "tls"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInstanceNameTooLong = errors.New("invalid instance name")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrNotFound            = errors.New("service not found")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	Instance string
	Port     uint16
	Path     string
	Version  string
	TLS      bool
}

// Service is one discovered endpoint.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Path         string
	Version      string
	TLS          bool
}

// URL returns the websocket URL of the service, preferring the first
// resolved address over the host name.
func (s *Service) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(s.Port))),
		Path:   s.Path,
	}
	return u.String()
}
