package interfaces

// -----------------------------------------------------------------------------
// IProxyManager defines the contract for managing and rotating proxies.
// -----------------------------------------------------------------------------

type IProxyManager interface {

	// GetCurrentProxy returns the currently selected proxy URL (or empty if none).
	GetCurrentProxy() (string, error)

	// RotateProxy switches to the next available proxy.
	RotateProxy()

	// HasProxies returns true if there are proxies configured.
	HasProxies() bool

	// GetUserAgent returns a User-Agent string.
	GetUserAgent() string
}
