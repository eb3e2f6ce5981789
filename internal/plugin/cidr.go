package plugin

import (
	"strconv"
	"strings"
)

// InRange reports whether ip falls in rng. rng is either "a.b.c.d/p",
// compared under the mask 0xFFFFFFFF << (32-p), or a bare address matched by
// exact string equality. Malformed input never matches.
func InRange(ip, rng string) bool {
	network, prefixStr, isCIDR := strings.Cut(rng, "/")
	if !isCIDR {
		return ip == rng
	}

	prefix, err := strconv.Atoi(prefixStr)
	if err != nil || prefix < 0 || prefix > 32 {
		return false
	}
	ipInt, ok := ipv4ToUint32(ip)
	if !ok {
		return false
	}
	netInt, ok := ipv4ToUint32(network)
	if !ok {
		return false
	}

	mask := uint32(0xFFFFFFFF << (32 - prefix))
	return ipInt&mask == netInt&mask
}

func ipv4ToUint32(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var out uint32
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		out = out<<8 | uint32(n)
	}
	return out, true
}

// InAnyRange reports whether ip falls in any of ranges.
func InAnyRange(ip string, ranges []string) bool {
	for _, r := range ranges {
		if InRange(ip, r) {
			return true
		}
	}
	return false
}
