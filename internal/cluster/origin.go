package cluster

import (
	"fmt"
	"net"
)

// ProbeAddr is a non-routed address used only to learn which local interface
// the kernel would pick for outbound traffic. Dialing UDP sends nothing.
const ProbeAddr = "10.1.0.0:9"

// ResolveOrigin returns the coordinator's routable local address.
func ResolveOrigin() (string, error) {
	return resolveVia(ProbeAddr)
}

func resolveVia(probe string) (string, error) {
	conn, err := net.Dial("udp4", probe)
	if err != nil {
		return "", fmt.Errorf("resolve origin: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "", fmt.Errorf("resolve origin: unexpected local address %v", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// Announce builds the tracker endpoint host:port advertised in descriptors.
func Announce(origin string, port int) string {
	return net.JoinHostPort(origin, fmt.Sprint(port))
}
