package upstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-pulse-backend/internal/logging"
)

// StreamState is the connection state of the push client
type StreamState int

const (
	StateDisconnected StreamState = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateStreaming
	StateBackoff
	StateHalted // backoff attempts exhausted, needs external restart
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateHalted:
		return "halted"
	default:
		return "disconnected"
	}
}

const (
	initialBackoff    = time.Second
	maxBackoff        = 60 * time.Second
	maxReconnectTries = 10
)

// PumpPortalClient consumes the PumpPortal push WebSocket: new-token,
// migration and per-token trade streams. Event callbacks run on the read
// goroutine; handlers must not block.
type PumpPortalClient struct {
	mu sync.RWMutex

	url   string
	conn  *websocket.Conn
	state StreamState
	log   *logging.Logger

	running  bool
	stopChan chan struct{}

	// Subscriptions replayed after every reconnect
	tokenSubs      map[string]bool // mint -> subscribed to trades
	wantNew        bool
	wantMigrations bool

	backoff    time.Duration
	reconnects int

	onNewToken  func(NewTokenEvent)
	onTrade     func(TradeEvent)
	onMigration func(MigrationEvent)
	onState     func(StreamState)
}

// NewPumpPortalClient creates a push client for the given WS endpoint
func NewPumpPortalClient(wsURL string) *PumpPortalClient {
	return &PumpPortalClient{
		url:       wsURL,
		state:     StateDisconnected,
		log:       logging.WithComponent("upstream.pumpportal"),
		tokenSubs: make(map[string]bool),
		backoff:   initialBackoff,
	}
}

// SetNewTokenHandler sets the callback for new-token events
func (c *PumpPortalClient) SetNewTokenHandler(fn func(NewTokenEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNewToken = fn
}

// SetTradeHandler sets the callback for trade events
func (c *PumpPortalClient) SetTradeHandler(fn func(TradeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrade = fn
}

// SetMigrationHandler sets the callback for migration events
func (c *PumpPortalClient) SetMigrationHandler(fn func(MigrationEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMigration = fn
}

// SetStateHandler sets the callback invoked on every state transition
func (c *PumpPortalClient) SetStateHandler(fn func(StreamState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current connection state
func (c *PumpPortalClient) State() StreamState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *PumpPortalClient) setState(s StreamState) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Start connects and begins streaming. Global new-token and migration
// streams are subscribed on every (re)connect. Idempotent while running.
func (c *PumpPortalClient) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.wantNew = true
	c.wantMigrations = true
	c.stopChan = make(chan struct{})
	c.backoff = initialBackoff
	c.reconnects = 0
	c.mu.Unlock()

	go c.connectLoop(ctx)
}

// Stop closes the connection and stops the reconnect loop
func (c *PumpPortalClient) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.setState(StateDisconnected)
	c.log.Info("push client stopped")
}

// Restart resets the backoff budget after a halt and reconnects
func (c *PumpPortalClient) Restart(ctx context.Context) {
	c.Stop()
	c.Start(ctx)
}

// SubscribeTokenTrades subscribes to the trade stream of a mint. The
// subscription survives reconnects until unsubscribed.
func (c *PumpPortalClient) SubscribeTokenTrades(mint string) {
	c.mu.Lock()
	if c.tokenSubs[mint] {
		c.mu.Unlock()
		return
	}
	c.tokenSubs[mint] = true
	conn := c.conn
	streaming := c.state == StateStreaming
	c.mu.Unlock()

	if streaming && conn != nil {
		c.send(conn, map[string]interface{}{"method": "subscribeTokenTrade", "keys": []string{mint}})
	}
}

// UnsubscribeTokenTrades drops the trade stream of a mint
func (c *PumpPortalClient) UnsubscribeTokenTrades(mint string) {
	c.mu.Lock()
	if !c.tokenSubs[mint] {
		c.mu.Unlock()
		return
	}
	delete(c.tokenSubs, mint)
	conn := c.conn
	streaming := c.state == StateStreaming
	c.mu.Unlock()

	if streaming && conn != nil {
		c.send(conn, map[string]interface{}{"method": "unsubscribeTokenTrade", "keys": []string{mint}})
	}
}

// SubscribedTokens returns the mints with an active trade subscription
func (c *PumpPortalClient) SubscribedTokens() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tokenSubs))
	for mint := range c.tokenSubs {
		out = append(out, mint)
	}
	return out
}

func (c *PumpPortalClient) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-c.stopChan:
			return
		default:
		}

		c.setState(StateConnecting)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if !c.waitBackoff(ctx, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.backoff = initialBackoff
		c.reconnects = 0
		c.mu.Unlock()
		c.setState(StateConnected)

		if err := c.replaySubscriptions(conn); err != nil {
			c.log.Warn("subscription replay failed", "error", err)
			conn.Close()
			if !c.waitBackoff(ctx, err) {
				return
			}
			continue
		}

		c.setState(StateStreaming)
		c.log.Info("streaming", "token_subs", len(c.SubscribedTokens()))

		c.readLoop(conn)

		c.mu.RLock()
		running := c.running
		c.mu.RUnlock()
		if !running {
			return
		}

		if !c.waitBackoff(ctx, nil) {
			return
		}
	}
}

// waitBackoff sleeps the current backoff, doubling up to the cap. Returns
// false when the retry budget is exhausted or the client is stopping; after
// exhaustion the client halts and must be restarted externally.
func (c *PumpPortalClient) waitBackoff(ctx context.Context, cause error) bool {
	c.mu.Lock()
	c.reconnects++
	attempts := c.reconnects
	wait := c.backoff
	c.backoff *= 2
	if c.backoff > maxBackoff {
		c.backoff = maxBackoff
	}
	c.mu.Unlock()

	if attempts > maxReconnectTries {
		c.log.Error("reconnect attempts exhausted, halting", "attempts", attempts-1)
		c.setState(StateHalted)
		return false
	}

	c.setState(StateBackoff)
	if cause != nil {
		c.log.Warn("connection failed, backing off", "wait", wait.String(), "attempt", attempts, "error", cause)
	} else {
		c.log.Warn("connection lost, backing off", "wait", wait.String(), "attempt", attempts)
	}

	select {
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	case <-time.After(wait):
		return true
	}
}

// replaySubscriptions restores the global and per-token streams
func (c *PumpPortalClient) replaySubscriptions(conn *websocket.Conn) error {
	c.setState(StateSubscribing)

	c.mu.RLock()
	wantNew := c.wantNew
	wantMigrations := c.wantMigrations
	mints := make([]string, 0, len(c.tokenSubs))
	for mint := range c.tokenSubs {
		mints = append(mints, mint)
	}
	c.mu.RUnlock()

	if wantNew {
		if err := c.send(conn, map[string]interface{}{"method": "subscribeNewToken"}); err != nil {
			return err
		}
	}
	if wantMigrations {
		if err := c.send(conn, map[string]interface{}{"method": "subscribeMigration"}); err != nil {
			return err
		}
	}
	if len(mints) > 0 {
		if err := c.send(conn, map[string]interface{}{"method": "subscribeTokenTrade", "keys": mints}); err != nil {
			return err
		}
	}
	return nil
}

func (c *PumpPortalClient) send(conn *websocket.Conn, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(payload)
}

func (c *PumpPortalClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("connection closed")
			} else {
				c.log.Warn("read error", "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// ppFrame is the wire shape of every PumpPortal event. txType tags the
// variant.
type ppFrame struct {
	TxType                string  `json:"txType"` // create | buy | sell | migrate
	Mint                  string  `json:"mint"`
	Signature             string  `json:"signature"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	TokenAmount           float64 `json:"tokenAmount"`
	SolAmount             float64 `json:"solAmount"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
	URI                   string  `json:"uri"`
	InitialBuy            float64 `json:"initialBuy"`
	Pool                  string  `json:"pool"`
	Timestamp             int64   `json:"timestamp"` // ms, zero on most frames
}

func (c *PumpPortalClient) handleMessage(message []byte) {
	var frame ppFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.log.Warn("undecodable frame", "error", err, "sample", sample(message))
		return
	}
	if frame.Mint == "" {
		// subscription acks and heartbeats carry no mint
		return
	}

	ts := frame.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	c.mu.RLock()
	onNew, onTrade, onMigration := c.onNewToken, c.onTrade, c.onMigration
	c.mu.RUnlock()

	switch frame.TxType {
	case "create":
		if onNew != nil {
			onNew(NewTokenEvent{
				Mint:                  frame.Mint,
				Symbol:                frame.Symbol,
				Name:                  frame.Name,
				URI:                   frame.URI,
				Creator:               frame.TraderPublicKey,
				InitialBuy:            frame.InitialBuy,
				MarketCapSol:          frame.MarketCapSol,
				VSolInBondingCurve:    frame.VSolInBondingCurve,
				VTokensInBondingCurve: frame.VTokensInBondingCurve,
				Signature:             frame.Signature,
				Timestamp:             ts,
			})
		}

	case "buy", "sell":
		if onTrade != nil {
			onTrade(TradeEvent{
				Mint:               frame.Mint,
				Type:               frame.TxType,
				TokenAmount:        frame.TokenAmount,
				SolAmount:          frame.SolAmount,
				VSolInBondingCurve: frame.VSolInBondingCurve,
				MarketCapSol:       frame.MarketCapSol,
				Trader:             frame.TraderPublicKey,
				Signature:          frame.Signature,
				Timestamp:          ts,
			})
		}

	case "migrate":
		if onMigration != nil {
			onMigration(MigrationEvent{
				Mint:      frame.Mint,
				Pool:      frame.Pool,
				Signature: frame.Signature,
				Timestamp: ts,
			})
		}

	default:
		c.log.Debug("unknown event type", "tx_type", frame.TxType)
	}
}
