// Copyright 2026 StudyForge
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fetch retrieves remote web content with SSRF defense.
//
// Every target is validated before any network call: only HTTPS is allowed,
// all resolved addresses of the hostname (both families) must fall outside
// private and reserved ranges, and the connection re-validates resolved IPs
// at dial time to defend against DNS rebinding. Redirects are not followed.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/studyforge/corpus/core"
)

const (
	// DefaultTimeout is the wall-clock limit for a single fetch.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBytes caps the response body; the transfer is aborted
	// mid-stream once exceeded.
	DefaultMaxBytes = 5 << 20 // 5 MB

	// DefaultUserAgent identifies the pipeline to remote servers.
	DefaultUserAgent = "corpus-ingester/1.0"
)

// Pre-compiled networks for ranges net.IP helpers do not cover.
var (
	cgnat    *net.IPNet // 100.64.0.0/10 carrier-grade NAT
	reserved *net.IPNet // 240.0.0.0/4 reserved
	v6unique *net.IPNet // fc00::/7 unique local

	metadataIP = net.ParseIP("169.254.169.254") // cloud metadata endpoint
)

func init() {
	for _, c := range []struct {
		cidr string
		dst  **net.IPNet
	}{
		{"100.64.0.0/10", &cgnat},
		{"240.0.0.0/4", &reserved},
		{"fc00::/7", &v6unique},
	} {
		_, network, err := net.ParseCIDR(c.cidr)
		if err != nil {
			panic("invalid CIDR " + c.cidr + ": " + err.Error())
		}
		*c.dst = network
	}
}

// IsDisallowedIP reports whether an address must never be fetched: loopback,
// private, link-local, unique-local, multicast, unspecified and reserved
// ranges, and the cloud metadata address.
func IsDisallowedIP(ip net.IP) bool {
	if ip.Equal(metadataIP) {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return cgnat.Contains(v4) || reserved.Contains(v4)
	}
	return v6unique.Contains(ip)
}

// Resolver resolves a hostname to its addresses. Injectable for tests.
type Resolver func(ctx context.Context, host string) ([]net.IPAddr, error)

// Fetcher fetches remote URLs safely.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	resolve   Resolver
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes sets the response size cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithResolver sets a custom DNS resolver.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.resolve = r
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultTimeout,
		maxBytes:  DefaultMaxBytes,
		userAgent: DefaultUserAgent,
		resolve: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		},
		logger: slog.Default().With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout:   f.timeout,
		KeepAlive: 30 * time.Second,
	}

	// Re-resolve and re-validate at connect time so a DNS answer that
	// changed between validation and dial cannot reach a private address.
	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := f.resolve(ctx, host)
		if err != nil {
			return nil, core.Wrap(core.KindSecurity, "hostname resolution failed", err)
		}
		if len(ips) == 0 {
			return nil, core.E(core.KindSecurity, "hostname %q resolved to no addresses", host)
		}
		for _, ipAddr := range ips {
			if IsDisallowedIP(ipAddr.IP) {
				return nil, core.E(core.KindSecurity, "connection to disallowed address %s blocked", ipAddr.IP)
			}
		}

		var lastErr error
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("failed to connect to any resolved address: %w", lastErr)
	}

	f.client = &http.Client{
		Timeout: f.timeout,
		Transport: &http.Transport{
			DialContext:           safeDialContext,
			TLSHandshakeTimeout:   f.timeout,
			ResponseHeaderTimeout: f.timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Policy: do not follow redirects at all. A redirect target
			// would have to restart validation from scratch.
			return core.E(core.KindSecurity, "redirect to %s blocked", req.URL)
		},
	}

	return f
}

// Validate checks a URL against the SSRF policy without fetching it: HTTPS
// scheme only, and every resolved address outside disallowed ranges. Any
// resolution failure is a block, not a pass-through.
func (f *Fetcher) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, core.Wrap(core.KindSecurity, "invalid URL", err)
	}
	if parsed.Scheme != "https" {
		return nil, core.E(core.KindSecurity, "scheme %q not allowed, only https", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, core.E(core.KindSecurity, "URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsDisallowedIP(ip) {
			return nil, core.E(core.KindSecurity, "address %s is in a disallowed range", ip)
		}
		return parsed, nil
	}

	ips, err := f.resolve(ctx, host)
	if err != nil {
		return nil, core.Wrap(core.KindSecurity, "hostname resolution failed", err)
	}
	if len(ips) == 0 {
		return nil, core.E(core.KindSecurity, "hostname %q resolved to no addresses", host)
	}
	for _, ipAddr := range ips {
		if IsDisallowedIP(ipAddr.IP) {
			return nil, core.E(core.KindSecurity, "hostname %q resolves to disallowed address %s", host, ipAddr.IP)
		}
	}

	return parsed, nil
}

// FetchText retrieves a remote page and extracts its primary readable
// content with boilerplate, scripts and styles stripped. Returns the page
// title and plain text.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (title, text string, err error) {
	parsed, err := f.Validate(ctx, rawURL)
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if kind := core.KindOf(err); kind != core.KindUnknown {
			return "", "", err
		}
		return "", "", core.Wrap(core.KindExternal, "fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", core.E(core.KindExternal, "unexpected status %d fetching %s", resp.StatusCode, parsed.Host)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !isTextContentType(mediaType) {
		return "", "", core.E(core.KindSecurity, "content type %q not allowed", mediaType)
	}

	body, err := f.readCapped(resp.Body)
	if err != nil {
		return "", "", err
	}

	if mediaType == "text/plain" {
		return "", string(body), nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", "", core.Wrap(core.KindExtraction, "readable content extraction failed", err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return "", "", core.E(core.KindExtraction, "page at %s has no readable content", parsed.Host)
	}

	f.logger.Debug("fetched page", "host", parsed.Host, "bytes", len(body), "title", article.Title)
	return article.Title, article.TextContent, nil
}

// readCapped reads at most maxBytes, aborting the transfer mid-stream when
// the cap is exceeded instead of buffering the full body first.
func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, core.Wrap(core.KindExternal, "read body", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, core.E(core.KindValidation, "response exceeds %d byte limit", f.maxBytes)
	}
	return body, nil
}

func isTextContentType(mediaType string) bool {
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
		return true
	}
	return false
}
