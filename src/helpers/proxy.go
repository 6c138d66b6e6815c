package helpers

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------

// ProxyManager rotates configured proxies and browser User-Agents.
// Quote providers such as NSE reject non-browser clients.
type ProxyManager struct {
	proxies    []string
	userAgents []string
	fixedUA    string
	index      int
	mu         sync.Mutex
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// -----------------------------------------------------------------------------

// NewProxyManager keeps only well-formed proxies. A non-empty userAgent disables rotation.
func NewProxyManager(proxies []string, userAgent string) *ProxyManager {
	var valid []string
	for _, p := range proxies {
		if formatted, ok := FormatProxy(p); ok {
			valid = append(valid, formatted)
		}
	}

	return &ProxyManager{
		proxies:    valid,
		userAgents: defaultUserAgents,
		fixedUA:    strings.TrimSpace(userAgent),
	}
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetCurrentProxy() (string, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return "", nil
	}
	return pm.proxies[pm.index], nil
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) RotateProxy() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) <= 1 {
		return
	}
	pm.index = (pm.index + 1) % len(pm.proxies)
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) HasProxies() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies) > 0
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetUserAgent() string {
	if pm.fixedUA != "" {
		return pm.fixedUA
	}
	return pm.userAgents[rand.Intn(len(pm.userAgents))]
}

// -----------------------------------------------------------------------------

// FormatProxy normalizes "host:port" to "http://host:port" and rejects malformed entries.
func FormatProxy(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", false
	}
	if !strings.Contains(p, "://") {
		p = "http://" + p
	}
	u, err := url.Parse(p)
	if err != nil || u.Host == "" || u.Port() == "" {
		return "", false
	}
	return p, true
}
