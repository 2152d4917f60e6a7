package transport

import (
	"fmt"
	"net"
	"strconv"
)

// Address represents an address on the IP network
type Address struct {
	IP   string
	Port uint16
}

func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.FormatUint(uint64(a.Port), 10))
}

// NewAddress constructs a new address from a string in the format "IP:Port".
func NewAddress(str string) (Address, error) {
	host, portStr, err := net.SplitHostPort(str)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", str, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port in %q: %w", str, err)
	}
	return Address{IP: host, Port: uint16(port)}, nil
}

// AddressFromUDP converts a resolved UDP address.
func AddressFromUDP(addr *net.UDPAddr) Address {
	ip := addr.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return Address{IP: ip.String(), Port: uint16(addr.Port)}
}
