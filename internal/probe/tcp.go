package probe

import (
	"context"
	"fmt"
	"net"

	"github.com/Paintersrp/rune2e/internal/config"
)

// tcpCheck succeeds once something accepts connections on address.
type tcpCheck struct {
	address string
	dialer  net.Dialer
}

func newTCPCheck(spec *config.TCPProbeSpec) *tcpCheck {
	return &tcpCheck{address: spec.Address}
}

func (c *tcpCheck) Probe(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("nothing listening on %s: %w", c.address, err)
	}
	return conn.Close()
}
