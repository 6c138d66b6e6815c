package models

// -----------------------------------------------------------------------------
// Push channel messages
// -----------------------------------------------------------------------------

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"

	MessageTypeQuote = "q"
	MessageTypeError = "error"
)

// MClientCommand is a client request on the push channel.
type MClientCommand struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// MQuoteMessage is a quote pushed to subscribers. Timestamp is epoch milliseconds.
type MQuoteMessage struct {
	Type   string `json:"T"`
	Symbol string `json:"S"`
	MQuote
	Timestamp int64 `json:"timestamp"`
}

// MErrorMessage replaces a quote for one cycle when the symbol could not be resolved.
type MErrorMessage struct {
	Type    string `json:"T"`
	Symbol  string `json:"S"`
	Message string `json:"message"`
}

// MNotice is a subscribe/unsubscribe acknowledgement or a request error.
type MNotice struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
