package netutil

import (
	"fmt"
	"net"
	"strings"
)

// ParseCIDRs parses every entry; invalid ones are skipped and reported in
// the returned error.
func ParseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	var (
		out []*net.IPNet
		bad []string
	)
	for _, s := range cidrs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(s))
		if err != nil {
			bad = append(bad, s)
			continue
		}
		out = append(out, n)
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("invalid cidrs: %s", strings.Join(bad, ", "))
	}
	return out, nil
}
