package network

import (
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	serviceHTTP = "_http._tcp"
	mdnsDomain  = "local."
)

// Responder answers mDNS queries for <hostname>.local until closed.
type Responder struct {
	server *zeroconf.Server
}

// Advertise registers hostname with the given address and announces the
// HTTP status page on port.
func Advertise(hostname string, ip net.IP, port int, ifaceName string) (*Responder, error) {
	var ifaces []net.Interface
	if ifaceName != "" {
		if iface, err := net.InterfaceByName(ifaceName); err == nil {
			ifaces = []net.Interface{*iface}
		}
	}
	server, err := zeroconf.RegisterProxy(hostname, serviceHTTP, mdnsDomain, port, hostname,
		[]string{ip.String()}, []string{"path=/"}, ifaces)
	if err != nil {
		return nil, fmt.Errorf("mdns register %s: %w", hostname, err)
	}
	log.Printf("MDNS responder started for %s.local", hostname)
	return &Responder{server: server}, nil
}

func (r *Responder) Close() error {
	r.server.Shutdown()
	return nil
}

// PortFromAddr extracts the numeric port of a listen address like ":80".
func PortFromAddr(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 0, fmt.Errorf("port %q: %w", port, err)
	}
	return p, nil
}
