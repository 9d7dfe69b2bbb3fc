package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatorRequiresUserAgents(t *testing.T) {
	_, err := NewRotator(WithUserAgents(nil))
	assert.ErrorIs(t, err, ErrEmptyUserAgentPool)
}

func TestRoundRobinUserAgents(t *testing.T) {
	agents := []string{"agent-a", "agent-b", "agent-c"}
	r, err := NewRotator(WithUserAgents(agents), WithMode(ModeRoundRobin))
	require.NoError(t, err)

	var got []string
	for i := 0; i < 6; i++ {
		id, err := r.Next()
		require.NoError(t, err)
		got = append(got, id.UserAgent)
	}

	assert.Equal(t, []string{"agent-a", "agent-b", "agent-c", "agent-a", "agent-b", "agent-c"}, got)
}

func TestRandomModeUsesPool(t *testing.T) {
	agents := []string{"agent-a", "agent-b"}
	r, err := NewRotator(WithUserAgents(agents), WithMode(ModeRandom))
	require.NoError(t, err)
	r.pick = func(n int) int { return 1 }

	id, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "agent-b", id.UserAgent)
}

func TestBrowserFamilyHeaders(t *testing.T) {
	chromeUA := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxUA := "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"

	chrome := browserHeaders(chromeUA)
	assert.Equal(t, chromeUA, chrome["User-Agent"])
	assert.Contains(t, chrome, "Sec-Ch-Ua")
	assert.Equal(t, `"Windows"`, chrome["Sec-Ch-Ua-Platform"])

	firefox := browserHeaders(firefoxUA)
	assert.Equal(t, firefoxUA, firefox["User-Agent"])
	assert.NotContains(t, firefox, "Sec-Ch-Ua")
	assert.Contains(t, firefox, "Accept-Language")
}

func TestProxyRoundRobinSkipsFailed(t *testing.T) {
	proxies := []ProxyEndpoint{
		{Host: "p1", Port: 8080},
		{Host: "p2", Port: 8080},
		{Host: "p3", Port: 8080},
	}
	r, err := NewRotator(WithProxies(proxies))
	require.NoError(t, err)

	r.MarkFailed(proxies[1])

	var hosts []string
	for i := 0; i < 4; i++ {
		id, err := r.Next()
		require.NoError(t, err)
		require.NotNil(t, id.Proxy)
		hosts = append(hosts, id.Proxy.Host)
	}

	assert.NotContains(t, hosts, "p2")
	assert.Contains(t, hosts, "p1")
	assert.Contains(t, hosts, "p3")
}

func TestAllProxiesFailed(t *testing.T) {
	proxies := []ProxyEndpoint{
		{Host: "p1", Port: 8080},
		{Host: "p2", Port: 8080},
	}
	r, err := NewRotator(WithProxies(proxies))
	require.NoError(t, err)

	r.MarkFailed(proxies[0])
	r.MarkFailed(proxies[1])

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrNoProxyAvailable)
	assert.Equal(t, 2, r.FailedCount())
}

func TestResetFailedRestoresPool(t *testing.T) {
	proxies := []ProxyEndpoint{{Host: "p1", Port: 8080}}
	r, err := NewRotator(WithProxies(proxies))
	require.NoError(t, err)

	r.MarkFailed(proxies[0])
	_, err = r.Next()
	require.ErrorIs(t, err, ErrNoProxyAvailable)

	r.ResetFailed()

	id, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "p1", id.Proxy.Host)
	assert.Equal(t, 0, r.FailedCount())
}

func TestProxyStatsCounters(t *testing.T) {
	proxies := []ProxyEndpoint{{Host: "p1", Port: 8080}}
	r, err := NewRotator(WithProxies(proxies))
	require.NoError(t, err)

	r.MarkSuccess(proxies[0])
	r.MarkSuccess(proxies[0])
	r.MarkFailed(proxies[0])

	stats := r.ProxyStats()
	assert.Equal(t, [2]int{2, 1}, stats["p1:8080"])
}

func TestParseProxy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ProxyEndpoint
		wantErr bool
	}{
		{"host and port", "10.0.0.1:8080", ProxyEndpoint{Host: "10.0.0.1", Port: 8080, Protocol: "http"}, false},
		{"with credentials", "proxy.example.com:3128:user:pass", ProxyEndpoint{Host: "proxy.example.com", Port: 3128, Username: "user", Password: "pass", Protocol: "http"}, false},
		{"missing port", "justahost", ProxyEndpoint{}, true},
		{"bad port", "host:notaport", ProxyEndpoint{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProxy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProxyURL(t *testing.T) {
	p := ProxyEndpoint{Host: "10.0.0.1", Port: 8080}
	assert.Equal(t, "http://10.0.0.1:8080", p.URL())

	p = ProxyEndpoint{Host: "10.0.0.1", Port: 8080, Username: "u", Password: "p", Protocol: "socks5"}
	assert.Equal(t, "socks5://u:p@10.0.0.1:8080", p.URL())
}
