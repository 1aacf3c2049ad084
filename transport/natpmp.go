package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
)

// NATPMPMapper maps ports with NAT-PMP (RFC 6886).
type NATPMPMapper struct {
	gateway  net.IP
	lifetime time.Duration
}

// NewNATPMPMapper creates a mapper that discovers the default gateway on
// first use.
func NewNATPMPMapper() *NATPMPMapper {
	return &NATPMPMapper{lifetime: time.Hour}
}

// NewNATPMPMapperWithGateway creates a mapper for a known gateway.
func NewNATPMPMapperWithGateway(gw net.IP) *NATPMPMapper {
	return &NATPMPMapper{gateway: gw, lifetime: time.Hour}
}

// Protocol implements PortMapper.
func (m *NATPMPMapper) Protocol() string {
	return "natpmp"
}

// FindMapping implements PortMapper. NAT-PMP cannot enumerate mappings.
func (m *NATPMPMapper) FindMapping(ctx context.Context, description string) (Mapping, error) {
	return Mapping{}, ErrNoMapping
}

// AddMapping implements PortMapper.
func (m *NATPMPMapper) AddMapping(ctx context.Context, internalPort int, description string) (Mapping, error) {
	if err := ctx.Err(); err != nil {
		return Mapping{}, err
	}

	client, err := m.client(ctx)
	if err != nil {
		return Mapping{}, err
	}
	result, err := client.AddPortMapping("udp", internalPort, internalPort, int(m.lifetime.Seconds()))
	if err != nil {
		return Mapping{}, fmt.Errorf("nat-pmp add mapping: %w", err)
	}

	return Mapping{
		InternalPort: int(result.InternalPort),
		ExternalPort: int(result.MappedExternalPort),
	}, nil
}

// DeleteMapping implements PortMapper. A zero lifetime removes the mapping.
func (m *NATPMPMapper) DeleteMapping(ctx context.Context, mapping Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := m.client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.AddPortMapping("udp", mapping.InternalPort, 0, 0); err != nil {
		return fmt.Errorf("nat-pmp delete mapping: %w", err)
	}
	return nil
}

// client returns a NAT-PMP client whose retries end with ctx's deadline.
func (m *NATPMPMapper) client(ctx context.Context) (*natpmp.Client, error) {
	gw := m.gateway
	if gw == nil {
		discovered, err := gateway.DiscoverGateway()
		if err != nil {
			return nil, fmt.Errorf("discover gateway: %w", err)
		}
		gw = discovered
	}
	if deadline, ok := ctx.Deadline(); ok {
		return natpmp.NewClientWithTimeout(gw, time.Until(deadline)), nil
	}
	return natpmp.NewClient(gw), nil
}
