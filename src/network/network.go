package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"
)

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger

	jar    http.CookieJar
	client *http.Client
	mu     sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}

	// cookiejar.New only fails on a bad PublicSuffixList, and we pass none.
	jar, _ := cookiejar.New(nil)

	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(proxies, cfg.Network.UserAgent),
		Logger:       log,
		jar:          jar,
	}
	nm.client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: nm.Config.Network.ConcurrentRequests,
		IdleConnTimeout:     90 * time.Second,
	}

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			proxyURL, err := url.Parse(proxyStr)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Jar:       nm.jar,
		Timeout:   time.Duration(nm.Config.Network.RequestTimeout) * time.Second,
	}
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	nm.mu.Lock()
	nm.client = nm.createClient()
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) httpClient() *http.Client {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.client
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and proxy rotation. The whole call,
// retries and backoff included, is bounded by ctx.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i*i) * time.Second):
			case <-ctx.Done():
				return nil, helpers.NewNetworkError("GET "+finalURL, ctx.Err())
			}
			nm.rotateProxy()
		}

		body, retry, err := nm.do(ctx, finalURL, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		nm.Logger.Debug("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
	}

	return nil, helpers.NewNetworkError("GET "+finalURL, lastErr)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalURL string, headers map[string]string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.httpClient().Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		nm.Logger.Info("Request blocked (%d). Rotating proxy.", resp.StatusCode)
		return nil, true, &StatusError{Code: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		return nil, false, &StatusError{Code: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, true, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}

// -----------------------------------------------------------------------------

// StatusError is a non-200 upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.Code)
}
