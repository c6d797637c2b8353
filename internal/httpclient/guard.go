package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pagewatch/pagewatch/errors"
)

// Guarded is an outbound client that refuses requests to private or loopback
// addresses. Watch notification targets come from user-editable config files,
// so a hardened deployment can route webhook traffic through this client to
// keep those files from probing the internal network.
type Guarded struct {
	*http.Client
}

// NewGuarded returns a client with the same timeout and pooling shape as New,
// plus scheme and address validation on the initial request, on every
// redirect, and again at dial time after DNS resolution.
func NewGuarded(timeout time.Duration) *Guarded {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	g := &Guarded{Client: &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}}

	g.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.Newf("stopped after %d redirects", maxRedirects)
		}
		if err := validateTarget(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}
	return g
}

// Do validates the target before delegating to the embedded client.
func (g *Guarded) Do(req *http.Request) (*http.Response, error) {
	if err := validateTarget(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return g.Client.Do(req)
}

// Get validates the target before issuing the request.
func (g *Guarded) Get(urlStr string) (*http.Response, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := validateTarget(u); err != nil {
		return nil, err
	}
	return g.Client.Get(urlStr)
}

// validateTarget rejects non-HTTP schemes, userinfo tricks, and hostnames
// that name a private or loopback address outright. Addresses reached via DNS
// are re-checked in DialContext so rebinding cannot slip past this.
func validateTarget(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		// http://evil.com@localhost/ style confusion.
		return errors.New("URL with userinfo not allowed")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if isLocalhost(hostname) {
		return errors.New("localhost access blocked")
	}
	if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
		return errors.Newf("private address blocked: %s", hostname)
	}
	return nil
}

// ipv4Private covers RFC 1918 plus the special-use ranges a notification
// target has no business resolving to.
var ipv4Private = []net.IPNet{
	{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(172, 16, 0, 0), Mask: net.CIDRMask(12, 32)},
	{IP: net.IPv4(192, 168, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(127, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(224, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
	{IP: net.IPv4(240, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
}

func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range ipv4Private {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}

	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	// Unique local fc00::/7, the IPv6 analogue of RFC 1918.
	if len(ip) > 0 && ip[0]&0xfe == 0xfc {
		return true
	}
	// Deprecated site-local fec0::/10.
	if len(ip) >= 2 && ip[0] == 0xfe && ip[1]&0xc0 == 0xc0 {
		return true
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
