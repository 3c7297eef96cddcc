package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"TradeVeil/internal/domain/models"
	drepo "TradeVeil/internal/domain/repository"
	applogger "TradeVeil/pkg/logger"
)

// Client implements a BarStream backed by the feed's WebSocket endpoint.
type Client struct {
	apiKey         string
	websocketURL   string
	instruments    []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	conn      *websocket.Conn
	connected bool
}

func New(apiKey, websocketURL string, instruments []string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) drepo.BarStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		instruments:    instruments,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.log.Info("feed connected", applogger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to bar updates for the configured instruments.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, inst := range c.instruments {
		msg := map[string]string{"type": "subscribe", "instrument": inst, "channel": "bars"}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", inst, err)
		}
		c.log.Info("feed subscribed", applogger.String("instrument", inst))
	}
	return nil
}

type wsBar struct {
	Instrument string  `json:"i"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	Spread     float64 `json:"s"`
	Time       int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string  `json:"type"`
	Data []wsBar `json:"data"`
}

// Read streams PriceBar events and errors. The error channel fires once on a
// fatal read error and both channels close after that.
func (c *Client) Read(ctx context.Context) (<-chan *models.PriceBar, <-chan error) {
	bars := make(chan *models.PriceBar, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(bars)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-bar frames
					continue
				}
				if m.Type != "bar" {
					continue
				}
				for _, d := range m.Data {
					bar := &models.PriceBar{
						Instrument: d.Instrument,
						Timestamp:  time.UnixMilli(d.Time).UTC(),
						Open:       d.Open,
						High:       d.High,
						Low:        d.Low,
						Close:      d.Close,
						Volume:     d.Volume,
						Spread:     d.Spread,
					}
					select {
					case bars <- bar:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return bars, errs
}

// Reconnect closes and reconnects, then re-subscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
