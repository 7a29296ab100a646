package netcore

import (
	"fmt"
	"net"
)

// EndpointKind discriminates the tagged union an Endpoint represents.
// Modeled as a kind enum on one struct rather than an interface hierarchy,
// per the "tagged variant" design note: Go interfaces buy nothing here since
// every variant is a handful of scalar fields and call sites always need to
// switch on kind anyway.
type EndpointKind int

const (
	EndpointIPv4 EndpointKind = iota
	EndpointIPv6
	EndpointLocal
)

// Endpoint is a source or remote address: IPv4(address, port),
// IPv6(address, port, scope), or Local(path).
type Endpoint struct {
	Kind    EndpointKind
	Address net.IP // set for EndpointIPv4 / EndpointIPv6
	Port    uint16 // set for EndpointIPv4 / EndpointIPv6
	Scope   string // set for EndpointIPv6 (zone id), empty otherwise
	Path    string // set for EndpointLocal
}

// IPv4Endpoint builds an Endpoint of kind EndpointIPv4.
func IPv4Endpoint(addr net.IP, port uint16) Endpoint {
	return Endpoint{Kind: EndpointIPv4, Address: addr.To4(), Port: port}
}

// IPv6Endpoint builds an Endpoint of kind EndpointIPv6.
func IPv6Endpoint(addr net.IP, port uint16, scope string) Endpoint {
	return Endpoint{Kind: EndpointIPv6, Address: addr.To16(), Port: port, Scope: scope}
}

// LocalEndpoint builds an Endpoint of kind EndpointLocal.
func LocalEndpoint(path string) Endpoint {
	return Endpoint{Kind: EndpointLocal, Path: path}
}

// String renders the endpoint the way net.Addr.String() would, so Endpoint
// values can be dropped directly into log fields.
func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointIPv4:
		return fmt.Sprintf("%s:%d", e.Address.String(), e.Port)
	case EndpointIPv6:
		if e.Scope != "" {
			return fmt.Sprintf("[%s%%%s]:%d", e.Address.String(), e.Scope, e.Port)
		}
		return fmt.Sprintf("[%s]:%d", e.Address.String(), e.Port)
	case EndpointLocal:
		return e.Path
	default:
		return "<invalid-endpoint>"
	}
}

// TCPAddr converts the endpoint to a *net.TCPAddr, valid for IPv4/IPv6 kinds.
func (e Endpoint) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: e.Address, Port: int(e.Port), Zone: e.Scope}
}

// UDPAddr converts the endpoint to a *net.UDPAddr, valid for IPv4/IPv6 kinds.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.Address, Port: int(e.Port), Zone: e.Scope}
}

// UnixAddr converts the endpoint to a *net.UnixAddr, valid for EndpointLocal.
func (e Endpoint) UnixAddr() *net.UnixAddr {
	return &net.UnixAddr{Name: e.Path, Net: "unix"}
}

// EndpointFromNetAddr decodes a net.Addr (as returned by the standard
// library's net package) back into an Endpoint. Encode-then-decode through
// String/these constructors round-trips to an equal Endpoint, per the
// round-trip property in §8.
func EndpointFromNetAddr(addr net.Addr) (Endpoint, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return endpointFromIP(a.IP, a.Port, a.Zone), nil
	case *net.UDPAddr:
		return endpointFromIP(a.IP, a.Port, a.Zone), nil
	case *net.UnixAddr:
		return LocalEndpoint(a.Name), nil
	default:
		return Endpoint{}, NewError(CodeInvalid, fmt.Errorf("unsupported address type %T", addr))
	}
}

func endpointFromIP(ip net.IP, port int, zone string) Endpoint {
	if v4 := ip.To4(); v4 != nil {
		return IPv4Endpoint(v4, uint16(port))
	}
	return IPv6Endpoint(ip, uint16(port), zone)
}
