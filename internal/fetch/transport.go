package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
)

// Response is what the transport hands back from one GET.
type Response struct {
	StatusCode int
	Body       string
	FinalURL   string
}

// Transport is the only path to the network. The Fetcher is its sole caller.
type Transport interface {
	Do(ctx context.Context, rawURL string, id identity.Identity) (*Response, error)
}

// maxBodyBytes bounds how much of a response body is read into memory.
const maxBodyBytes = 10 << 20

// HTTPTransport issues GETs through net/http, one pooled client per proxy
// endpoint so connections are reused across attempts.
type HTTPTransport struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		timeout: timeout,
		clients: make(map[string]*http.Client),
	}
}

func (t *HTTPTransport) Do(ctx context.Context, rawURL string, id identity.Identity) (*Response, error) {
	client, err := t.clientFor(id.Proxy)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}

	// Accept-Encoding is left to net/http so gzip bodies are decompressed
	// transparently.
	for key, value := range id.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		FinalURL:   finalURL,
	}, nil
}

// clientFor returns the pooled client for the given proxy, or the direct
// client when proxy is nil.
func (t *HTTPTransport) clientFor(proxy *identity.ProxyEndpoint) (*http.Client, error) {
	key := ""
	if proxy != nil {
		key = proxy.Key()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if client, ok := t.clients[key]; ok {
		return client, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		proxyURL, err := url.Parse(proxy.URL())
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxy.URL(), err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{Transport: transport}
	t.clients[key] = client
	return client, nil
}
