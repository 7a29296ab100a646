package socket

import (
	"github.com/kayalabs/netcore"
	"golang.org/x/sys/unix"
)

// sockaddrOf converts an Endpoint to the unix.Sockaddr syscall.Connect/Bind
// expect, the inverse of endpointFromSockaddr.
func sockaddrOf(ep netcore.Endpoint) (unix.Sockaddr, error) {
	switch ep.Kind {
	case netcore.EndpointIPv4:
		var addr [4]byte
		copy(addr[:], ep.Address.To4())
		return &unix.SockaddrInet4{Port: int(ep.Port), Addr: addr}, nil
	case netcore.EndpointIPv6:
		var addr [16]byte
		copy(addr[:], ep.Address.To16())
		return &unix.SockaddrInet6{Port: int(ep.Port), Addr: addr}, nil
	case netcore.EndpointLocal:
		return &unix.SockaddrUnix{Name: ep.Path}, nil
	default:
		return nil, netcore.ErrInvalid
	}
}

// endpointFromSockaddr is sockaddrOf's inverse, used to report accepted
// peer addresses and bound local addresses.
func endpointFromSockaddr(sa unix.Sockaddr) netcore.Endpoint {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netcore.IPv4Endpoint(a.Addr[:], uint16(a.Port))
	case *unix.SockaddrInet6:
		return netcore.IPv6Endpoint(a.Addr[:], uint16(a.Port), "")
	case *unix.SockaddrUnix:
		return netcore.LocalEndpoint(a.Name)
	default:
		return netcore.Endpoint{}
	}
}
