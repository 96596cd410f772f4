// Package network waits for the board's static address to come up and
// advertises the status page over mDNS.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

// ErrNotAssociated is returned when the expected address never appeared.
var ErrNotAssociated = errors.New("network address not present")

// AddrSource lists the addresses currently assigned to the link. It
// returns no addresses while the link is down.
type AddrSource func() ([]net.Addr, error)

// InterfaceAddrs returns an AddrSource for the named interface.
func InterfaceAddrs(name string) AddrSource {
	return func() ([]net.Addr, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, err
		}
		if iface.Flags&net.FlagUp == 0 {
			return nil, nil
		}
		return iface.Addrs()
	}
}

// WaitForAddress polls src until it carries the configured static address.
// The poll interval starts at PollIntervalMs and doubles up to
// MaxIntervalMs; after MaxAttempts polls it gives up with ErrNotAssociated.
func WaitForAddress(ctx context.Context, cfg config.NetworkConfig, src AddrSource) (net.IP, error) {
	want, subnet, err := net.ParseCIDR(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("network address: %w", err)
	}
	interval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	maxInterval := time.Duration(cfg.MaxIntervalMs) * time.Millisecond
	if maxInterval < interval {
		maxInterval = interval
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		addrs, err := src()
		if err != nil {
			lastErr = err
		} else if hasAddress(addrs, want, subnet.Mask) {
			if cfg.SSID != "" {
				log.Printf("Connected to %s, IP address: %s", cfg.SSID, want)
			} else {
				log.Printf("Connected, IP address: %s", want)
			}
			return want, nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		log.Printf("waiting for %s on %s (attempt %d/%d)", cfg.Address, cfg.Interface, attempt, cfg.MaxAttempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, maxInterval)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotAssociated, cfg.MaxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrNotAssociated, cfg.MaxAttempts)
}

func hasAddress(addrs []net.Addr, want net.IP, mask net.IPMask) bool {
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipn.IP.Equal(want) && maskEqual(ipn.Mask, mask) {
			return true
		}
	}
	return false
}

func maskEqual(a, b net.IPMask) bool {
	aOnes, aBits := a.Size()
	bOnes, bBits := b.Size()
	// IPv4 masks may come back in 16-byte form
	return aOnes-aBits == bOnes-bBits
}
