package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrEmptyUserAgentPool = errors.New("user agent pool is empty")
	ErrNoProxyAvailable   = errors.New("no proxy available")
)

// SelectionMode controls how the rotator picks the next user agent.
type SelectionMode int

const (
	ModeRandom SelectionMode = iota
	ModeRoundRobin
)

// ProxyEndpoint is one entry in the proxy pool. Credentials are optional.
type ProxyEndpoint struct {
	Host     string
	Port     int
	Username string
	Password string
	Protocol string
}

// URL renders the endpoint in the form the transport expects.
func (p ProxyEndpoint) URL() string {
	protocol := p.Protocol
	if protocol == "" {
		protocol = "http"
	}
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", protocol, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", protocol, p.Host, p.Port)
}

// Key identifies the endpoint in health bookkeeping.
func (p ProxyEndpoint) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// ParseProxy parses "host:port" or "host:port:username:password".
func ParseProxy(s string) (ProxyEndpoint, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return ProxyEndpoint{}, fmt.Errorf("invalid proxy %q: want host:port", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return ProxyEndpoint{}, fmt.Errorf("invalid proxy port in %q: %w", s, err)
	}
	p := ProxyEndpoint{Host: parts[0], Port: port, Protocol: "http"}
	if len(parts) > 2 {
		p.Username = parts[2]
	}
	if len(parts) > 3 {
		p.Password = parts[3]
	}
	return p, nil
}

// Identity is the user agent, header set, and optional proxy presented for
// one fetch attempt. Immutable once returned.
type Identity struct {
	UserAgent string
	Headers   map[string]string
	Proxy     *ProxyEndpoint
}

// DefaultUserAgents mirrors a handful of current desktop browsers.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// proxyHealth tracks per-endpoint outcomes.
type proxyHealth struct {
	success int
	failure int
}

// Rotator hands out an Identity per fetch attempt: a user agent with a
// matching browser header set, plus the next healthy proxy when proxy
// rotation is enabled. All state is private to one rotator instance.
type Rotator struct {
	mu sync.Mutex

	userAgents []string
	mode       SelectionMode
	uaIndex    int

	proxies    []ProxyEndpoint
	proxyIndex int
	failed     map[string]struct{}
	health     map[string]*proxyHealth

	logger *slog.Logger

	// overridable in tests
	pick func(n int) int
}

// Option customizes a Rotator at construction.
type Option func(*Rotator)

// WithUserAgents replaces the default user agent pool.
func WithUserAgents(agents []string) Option {
	return func(r *Rotator) { r.userAgents = agents }
}

// WithMode selects random or round-robin user agent rotation.
func WithMode(mode SelectionMode) Option {
	return func(r *Rotator) { r.mode = mode }
}

// WithProxies enables proxy rotation over the given pool.
func WithProxies(proxies []ProxyEndpoint) Option {
	return func(r *Rotator) { r.proxies = proxies }
}

func NewRotator(opts ...Option) (*Rotator, error) {
	r := &Rotator{
		userAgents: DefaultUserAgents,
		mode:       ModeRandom,
		failed:     make(map[string]struct{}),
		health:     make(map[string]*proxyHealth),
		logger:     slog.Default().With("component", "identity"),
		pick:       rand.Intn,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.userAgents) == 0 {
		return nil, ErrEmptyUserAgentPool
	}
	for _, p := range r.proxies {
		r.health[p.Key()] = &proxyHealth{}
	}
	return r, nil
}

// Next returns the identity for the next fetch attempt. When proxy rotation
// is enabled and every proxy has failed, it returns ErrNoProxyAvailable.
func (r *Rotator) Next() (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ua := r.nextUserAgent()
	id := Identity{
		UserAgent: ua,
		Headers:   browserHeaders(ua),
	}

	if len(r.proxies) > 0 {
		proxy, ok := r.nextProxy()
		if !ok {
			r.logger.Warn("all proxies marked failed")
			return Identity{}, ErrNoProxyAvailable
		}
		id.Proxy = &proxy
	}

	return id, nil
}

// MarkFailed records a failed attempt through the endpoint and removes it
// from rotation until ResetFailed.
func (r *Rotator) MarkFailed(p ProxyEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	r.failed[key] = struct{}{}
	if h, ok := r.health[key]; ok {
		h.failure++
	}
	r.logger.Warn("proxy marked failed", "proxy", key)
}

// MarkSuccess records a successful attempt through the endpoint.
func (r *Rotator) MarkSuccess(p ProxyEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.health[p.Key()]; ok {
		h.success++
	}
}

// ResetFailed clears the failed set. Operator action only; there is no
// automatic recovery of failed proxies.
func (r *Rotator) ResetFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed = make(map[string]struct{})
	r.logger.Info("failed proxy set cleared")
}

// FailedCount returns how many proxies are currently out of rotation.
func (r *Rotator) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

// ProxyStats returns success/failure counters per endpoint key.
func (r *Rotator) ProxyStats() map[string][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string][2]int, len(r.health))
	for key, h := range r.health {
		stats[key] = [2]int{h.success, h.failure}
	}
	return stats
}

func (r *Rotator) nextUserAgent() string {
	if r.mode == ModeRoundRobin {
		ua := r.userAgents[r.uaIndex]
		r.uaIndex = (r.uaIndex + 1) % len(r.userAgents)
		return ua
	}
	return r.userAgents[r.pick(len(r.userAgents))]
}

// nextProxy walks the pool round-robin, skipping failed entries.
func (r *Rotator) nextProxy() (ProxyEndpoint, bool) {
	for attempts := 0; attempts < len(r.proxies); attempts++ {
		proxy := r.proxies[r.proxyIndex]
		r.proxyIndex = (r.proxyIndex + 1) % len(r.proxies)

		if _, bad := r.failed[proxy.Key()]; !bad {
			return proxy, true
		}
	}
	return ProxyEndpoint{}, false
}

// browserHeaders builds the header set a real browser with this user agent
// would send. Chromium-family agents get client hint headers.
func browserHeaders(userAgent string) map[string]string {
	headers := map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
	}

	if strings.Contains(userAgent, "Chrome") {
		headers["Sec-Ch-Ua"] = `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`
		headers["Sec-Ch-Ua-Mobile"] = "?0"
		if strings.Contains(userAgent, "Windows") {
			headers["Sec-Ch-Ua-Platform"] = `"Windows"`
		} else {
			headers["Sec-Ch-Ua-Platform"] = `"macOS"`
		}
	}

	return headers
}
