package discovery

import (
	"context"
	"fmt"
	"time"
)

// Browser finds notification endpoints.
type Browser interface {
	// Browse streams services as they are found. The channel is closed
	// when ctx is done.
	Browse(ctx context.Context) (<-chan *Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc selects services.
type FilterFunc func(*Service) bool

// FilterByVersion selects services speaking version.
func FilterByVersion(version string) FilterFunc {
	return func(s *Service) bool {
		return s.Version == version
	}
}

// FilterByInstance selects the service with the instance name.
func FilterByInstance(name string) FilterFunc {
	return func(s *Service) bool {
		return s.InstanceName == name
	}
}

// Find returns the first service accepted by filter (nil accepts all).
func Find(ctx context.Context, b Browser, filter FilterFunc) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		if filter == nil || filter(svc) {
			return svc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil, ErrNotFound
}

// ServiceEntry is a raw DNS-SD answer, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToService converts the entry. Entries without the required TXT records
// are rejected.
func (e *ServiceEntry) ToService() (*Service, error) {
	info, err := DecodeTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &Service{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    e.Addrs,
		Path:         info.Path,
		Version:      info.Version,
		TLS:          info.TLS,
	}, nil
}
