package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/quotes"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// QuoteResolver is what the push channel needs from quotes.QuoteResolver.
type QuoteResolver interface {
	Resolve(ctx context.Context, symbol string) (*models.MQuote, error)
}

// -----------------------------------------------------------------------------
// Gateway
// -----------------------------------------------------------------------------

// Gateway accepts websocket connections and applies their subscribe and
// unsubscribe commands to the registry.
type Gateway struct {
	Registry   *SubscriptionRegistry
	Quotes     QuoteResolver
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	SendBuffer int

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	clients     map[string]*Client
	connections atomic.Int64
}

func NewGateway(registry *SubscriptionRegistry, resolver QuoteResolver, sendBuffer int, log *logger.Logger, m *metrics.Metrics) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Gateway{
		Registry:   registry,
		Quotes:     resolver,
		Logger:     log,
		Metrics:    m,
		SendBuffer: sendBuffer,
		ctx:        ctx,
		cancel:     cancel,
		clients:    make(map[string]*Client),
	}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

func quoteMessage(q *models.MQuote) models.MQuoteMessage {
	return models.MQuoteMessage{
		Type:      models.MessageTypeQuote,
		Symbol:    q.Symbol,
		MQuote:    *q,
		Timestamp: time.Now().UnixMilli(),
	}
}

func errorMessage(symbol string, err error) models.MErrorMessage {
	return models.MErrorMessage{
		Type:    models.MessageTypeError,
		Symbol:  symbol,
		Message: "Error fetching data: " + err.Error(),
	}
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies one command. It returns false when the connection
// should be closed.
func (g *Gateway) HandleClientMessage(conn interfaces.IConnection, message []byte) bool {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		g.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		return false
	}

	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	symbol := quotes.NormalizeSymbol(cmd.Symbol)

	if action != models.ActionSubscribe && action != models.ActionUnsubscribe {
		conn.Send(models.MNotice{Error: "Unknown action: " + cmd.Action})
		return true
	}
	if symbol == "" {
		conn.Send(models.MNotice{Error: "Symbol is required"})
		return true
	}

	if action == models.ActionUnsubscribe {
		g.Registry.Unsubscribe(conn, symbol)
		conn.Send(models.MNotice{Message: "Unsubscribed from " + symbol})
		g.refreshGauges()
		return true
	}

	g.subscribe(conn, symbol)
	return true
}

// -----------------------------------------------------------------------------

// subscribe validates symbol by resolving it. The acknowledgement and the first
// quote are queued before the edge exists, so they always precede broadcasts.
func (g *Gateway) subscribe(conn interfaces.IConnection, symbol string) {
	q, err := g.Quotes.Resolve(g.ctx, symbol)
	if err != nil {
		g.Logger.Info("Rejected subscription of %s to %s: %v", conn.ID(), symbol, err)
		conn.Send(models.MNotice{Error: "Invalid stock symbol: " + symbol})
		return
	}

	if err := conn.Send(models.MNotice{Message: "Subscribed to " + symbol}); err != nil {
		return
	}
	if err := conn.Send(quoteMessage(q)); err != nil {
		return
	}

	g.Registry.Subscribe(conn, symbol)
	g.refreshGauges()
}

// -----------------------------------------------------------------------------

func (g *Gateway) disconnect(c *Client) {
	dropped := g.Registry.Drop(c)

	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	g.connections.Add(-1)

	g.refreshGauges()
	g.Logger.Info("Client %s disconnected (dropped %d subscriptions)", c.id, len(dropped))
}

// -----------------------------------------------------------------------------

func (g *Gateway) refreshGauges() {
	_, symbols := g.Registry.Stats()
	g.Metrics.SetSubscriptions(int(g.connections.Load()), symbols)
}

// Connections counts open websocket connections.
func (g *Gateway) Connections() int {
	return int(g.connections.Load())
}

// -----------------------------------------------------------------------------

// Shutdown cancels in-flight validations and closes every client.
func (g *Gateway) Shutdown() {
	g.cancel()

	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(uuid.NewString(), g, conn, g.SendBuffer)

	g.mu.Lock()
	g.clients[client.id] = client
	g.mu.Unlock()
	g.connections.Add(1)
	g.refreshGauges()

	g.Logger.Debug("Client %s connected from %s", client.id, c.ClientIP())

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
