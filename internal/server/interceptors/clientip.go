package interceptors

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

var clientIPKey = contextKey{"client_ip"}

// IPResolver derives the client address of a call. Forwarding headers are honoured only when the
// transport peer is one of the trusted proxies; anyone else could put any address in them.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver returns a resolver that believes x-forwarded-for and x-real-ip from peers inside trusted.
// With no prefixes it always uses the peer address.
func NewIPResolver(trusted []netip.Prefix) *IPResolver {
	return &IPResolver{trusted: trusted}
}

func (r *IPResolver) isTrusted(a netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Resolve returns the client IP for ctx, or "unknown" when there is no usable peer.
func (r *IPResolver) Resolve(ctx context.Context) string {
	host, addr, ok := peerAddr(ctx)
	if !ok || !r.isTrusted(addr) {
		return host
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if hops := forwardedHops(md.Get("x-forwarded-for")); len(hops) > 0 {
		// Walk back from the proxy nearest us; the first hop we do not operate is the client.
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(hops[i])
			if err != nil {
				return host
			}
			if !r.isTrusted(a.Unmap()) || i == 0 {
				return a.Unmap().String()
			}
		}
	}
	if vals := md.Get("x-real-ip"); len(vals) > 0 {
		if a, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
			return a.Unmap().String()
		}
	}
	return host
}

// ClientIPUnary returns a unary server interceptor that resolves the client IP once and stores it in
// the context for ClientIP. It must run before any interceptor that reads ClientIP.
func ClientIPUnary(r *IPResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(WithClientIP(ctx, r.Resolve(ctx)), req)
	}
}

// WithClientIP returns a context carrying ip as the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the address resolved by ClientIPUnary. Without it, the transport peer address is used
// and forwarding headers are ignored. Returns "unknown" when neither is available.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	host, _, _ := peerAddr(ctx)
	return host
}

// peerAddr returns the peer host as text and, when it is an IP, parsed.
func peerAddr(ctx context.Context) (string, netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown", netip.Addr{}, false
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return host, netip.Addr{}, false
	}
	return a.Unmap().String(), a.Unmap(), true
}

// forwardedHops flattens x-forwarded-for values into hops, client first.
func forwardedHops(vals []string) []string {
	var hops []string
	for _, v := range vals {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	return hops
}
