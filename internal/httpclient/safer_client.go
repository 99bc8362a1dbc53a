// Package httpclient builds the HTTP clients used for hosted model APIs.
// Requests to loopback, private or link-local addresses are refused unless the
// client was built for a local endpoint.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/shopper/errors"
)

// DefaultTimeout bounds a single provider request
const DefaultTimeout = 120 * time.Second

// Options customizes a SaferClient
type Options struct {
	// AllowPrivate permits loopback and private addresses (local inference servers)
	AllowPrivate bool
	// MaxRedirects defaults to 10
	MaxRedirects int
}

// SaferClient wraps http.Client with SSRF protection
type SaferClient struct {
	*http.Client
	blockPrivateIP bool
	maxRedirects   int
}

// New creates a client that refuses private destinations
func New(timeout time.Duration) *SaferClient {
	return NewWithOptions(timeout, Options{})
}

// NewWithOptions creates a client with custom protection options
func NewWithOptions(timeout time.Duration, opts Options) *SaferClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	c := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		blockPrivateIP: !opts.AllowPrivate,
		maxRedirects:   maxRedirects,
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		return errors.Wrap(c.validateURL(req.URL), "redirect blocked")
	}

	if c.blockPrivateIP {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				// Dial the checked address so DNS cannot change between check and connect
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return c
}

// Wrap adopts an existing http.Client without SSRF protection.
// Tests use it to reach httptest servers on localhost.
func Wrap(client *http.Client) *SaferClient {
	return &SaferClient{Client: client, maxRedirects: 10}
}

// Do executes an HTTP request with SSRF protection
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked by SSRF protection")
	}
	return c.Client.Do(req)
}

// ValidateURL parses and validates a URL string before creating a request
func (c *SaferClient) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed (allowed: http, https)", scheme)
	}
	if u.User != nil {
		return errors.New("URL contains credentials (@)")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

// isPrivateIP checks if an IP is in private or special use ranges
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		// 0.0.0.0/8 and 240.0.0.0/4
		return ip4[0] == 0 || ip4[0] >= 240
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
