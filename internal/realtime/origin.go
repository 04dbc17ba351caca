package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// sameOriginOrLoopback accepts requests without an Origin header, from the
// serving host, or from a loopback address during local development.
func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := originHost(origin)
	return strings.EqualFold(host, stripPort(r.Host)) || isLoopback(host)
}

// originHost returns the bare host of an Origin header value.
func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return stripPort(origin)
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
