package gateway

import "github.com/dmaher/quotehub/internal/model"

// Inbound command actions.
const (
	ActionSubscribe         = "subscribe"
	ActionSubscribeMultiple = "subscribe_multiple"
	ActionUnsubscribe       = "unsubscribe"
	ActionUnsubscribeAll    = "unsubscribe_all"
)

// Outbound event types.
const (
	EventQuoteUpdate            = "quote_update"
	EventSubscribed             = "subscribed"
	EventUnsubscribed           = "unsubscribed"
	EventConnectionStatus       = "connection_status"
	EventMarketDataConnected    = "market_data_connected"
	EventMarketDataDisconnected = "market_data_disconnected"
	EventError                  = "error"
)

// Command is a downstream client request.
type Command struct {
	Action  string   `json:"action"`
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// Event is a server-pushed message to a downstream client.
type Event struct {
	Type      string       `json:"type"`
	Symbol    string       `json:"symbol,omitempty"`
	Quote     *model.Quote `json:"quote,omitempty"`
	Connected *bool        `json:"connected,omitempty"`
	Message   string       `json:"message,omitempty"`
}
