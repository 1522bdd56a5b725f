package server

import "strings"

// normalizeAddr accepts "8080", ":8080" or "host:8080".
func normalizeAddr(addr string) string {
	switch {
	case addr == "":
		return ":0"
	case strings.Contains(addr, ":"):
		return addr
	default:
		return ":" + addr
	}
}
