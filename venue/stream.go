package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OrderHandler receives order update pushes from the gateway.
type OrderHandler func(accountID string, order Order)

// OrderStream maintains the WebSocket connection that carries order update
// pushes, with keep-alive pings, health monitoring and reconnection.
type OrderStream struct {
	wsURL     string
	accountID string
	handler   OrderHandler

	mu          sync.Mutex
	conn        *websocket.Conn
	lastMsgTime time.Time
	pingCancel  context.CancelFunc
}

// NewOrderStream creates an order push stream for one account.
func NewOrderStream(wsURL, accountID string, handler OrderHandler) *OrderStream {
	return &OrderStream{
		wsURL:       wsURL,
		accountID:   accountID,
		handler:     handler,
		lastMsgTime: time.Now(),
	}
}

// Connect establishes the WebSocket connection and subscribes to order
// pushes for the account.
func (s *OrderStream) Connect() error {
	header := make(http.Header)
	header.Set("X-Account-ID", s.accountID)

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, header)
	if err != nil {
		return fmt.Errorf("order stream connection failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	sub := map[string]interface{}{
		"action":     "subscribe",
		"channel":    "orders",
		"account_id": s.accountID,
	}
	if err := s.writeJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe to order pushes: %w", err)
	}

	log.Printf("✅ Order stream connected for account %s", s.accountID)
	return nil
}

func (s *OrderStream) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("order stream not connected")
	}
	return s.conn.WriteJSON(v)
}

// StartPing starts the keep-alive pinger.
func (s *OrderStream) StartPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn == nil {
					return
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					log.Println("Failed to send ping:", err)
					return
				}
			}
		}
	}()
}

// Run reads order pushes until the context is cancelled, reconnecting with
// exponential backoff on failure.
func (s *OrderStream) Run(ctx context.Context) {
	reconnectDelay := 5 * time.Second
	const maxReconnectDelay = 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Order stream stopped")
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			if err := s.reconnect(); err != nil {
				log.Printf("❌ Order stream reconnection failed: %v, retrying in %v", err, reconnectDelay)
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}
				continue
			}
			reconnectDelay = 5 * time.Second
			continue
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️  Order stream read failed: %v", err)
			s.closeConn()
			continue
		}

		s.mu.Lock()
		s.lastMsgTime = time.Now()
		s.mu.Unlock()

		var order Order
		if err := json.Unmarshal(payload, &order); err != nil {
			log.Printf("⚠️  Malformed order push: %v", err)
			continue
		}
		if order.OrderID == "" {
			continue // subscription acks and heartbeats
		}

		log.Printf("🟢 %s %s %s %s order(%s) at %.2f with quantity %.0f",
			s.accountID, order.Ticker, order.Status, order.Side, order.OrderID, order.Price, order.Quantity)
		if s.handler != nil {
			s.handler(s.accountID, order)
		}
	}
}

// RunHealthMonitor starts a background loop to check connection health.
func (s *OrderStream) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	log.Println("💓 Order stream health monitoring started")

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Order stream health monitoring stopped")
			return
		case <-ticker.C:
			s.mu.Lock()
			sinceLast := time.Since(s.lastMsgTime)
			s.mu.Unlock()

			// No pushes in 5 minutes means the connection is stale.
			if sinceLast > 5*time.Minute {
				log.Printf("⚠️  No order push received for %v, reconnecting...", sinceLast.Round(time.Second))
				s.closeConn()
			} else {
				log.Printf("💓 Order stream healthy, last push %v ago", sinceLast.Round(time.Second))
			}
		}
	}
}

func (s *OrderStream) reconnect() error {
	s.closeConn()
	if err := s.Connect(); err != nil {
		return err
	}
	s.StartPing(25 * time.Second)
	s.mu.Lock()
	s.lastMsgTime = time.Now()
	s.mu.Unlock()
	log.Println("✅ Order stream reconnected")
	return nil
}

func (s *OrderStream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingCancel != nil {
		s.pingCancel()
		s.pingCancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close shuts the stream down.
func (s *OrderStream) Close() error {
	s.closeConn()
	return nil
}
