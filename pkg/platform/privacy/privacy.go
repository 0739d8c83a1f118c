// Package privacy holds helpers that keep personal data out of logs.
package privacy

import "net/netip"

// AnonymizeIP truncates an address before it is logged: IPv4 keeps its /24,
// IPv6 its /48. Unparseable input is replaced rather than echoed.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}
