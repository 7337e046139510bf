// Package netinfo lists the LAN addresses a user could reach this device
// on. Purely descriptive: the relay handles actual connectivity, these
// addresses only feed CLI display and direct-LAN pairing codes.
package netinfo

import (
	"net"
	"sort"
	"strings"
)

// Address is one candidate LAN address.
type Address struct {
	Interface string
	IP        net.IP
}

// virtualPrefixes mark container/bridge interfaces that never carry a
// user-reachable address.
var virtualPrefixes = []string{"br-", "veth", "docker", "virbr", "vmnet", "tailscale"}

// Addresses returns private IPv4 addresses on up, non-loopback,
// non-virtual interfaces, preferred interfaces first.
func Addresses() []Address {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	return collect(ifaces, func(iface net.Interface) []net.Addr {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil
		}
		return addrs
	})
}

// Primary returns the best candidate address, if any.
func Primary() (Address, bool) {
	addrs := Addresses()
	if len(addrs) == 0 {
		return Address{}, false
	}
	return addrs[0], true
}

func collect(ifaces []net.Interface, addrsOf func(net.Interface) []net.Addr) []Address {
	var out []Address
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVirtual(iface.Name) {
			continue
		}
		for _, addr := range addrsOf(iface) {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			v4 := ipnet.IP.To4()
			if v4 == nil || !isPrivate(v4) {
				continue
			}
			out = append(out, Address{Interface: iface.Name, IP: v4})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return preferenceRank(out[i].Interface) < preferenceRank(out[j].Interface)
	})
	return out
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isPrivate reports whether ip falls in RFC 1918 space.
func isPrivate(ip net.IP) bool {
	switch {
	case ip[0] == 10:
		return true
	case ip[0] == 192 && ip[1] == 168:
		return true
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31:
		return true
	}
	return false
}

// preferenceRank orders physical ethernet and wifi names ahead of
// anything else.
func preferenceRank(name string) int {
	switch {
	case strings.HasPrefix(name, "en") || strings.HasPrefix(name, "eth"):
		return 0
	case strings.HasPrefix(name, "wl"):
		return 1
	default:
		return 2
	}
}
