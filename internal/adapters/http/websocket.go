package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/meetpoint/internal/adapters/nats"
	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// wsMessage is a client command: {"action":"subscribe","run_id":"..."}.
// An empty run_id follows every run.
type wsMessage struct {
	Action string `json:"action"`
	RunID  string `json:"run_id"`
}

// wsReply acknowledges a command. Results are relayed as the raw event JSON.
type wsReply struct {
	Status  string `json:"status,omitempty"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error,omitempty"`
}

// resultSubject picks the NATS subject a client message refers to.
func resultSubject(runID string) string {
	if runID == "" {
		return natsadapter.SubjectResults + ">"
	}
	return natsadapter.ResultSubject(runID)
}

// wsSession is one client connection and its NATS subscriptions. Writes
// come from the read loop, the pinger and NATS callbacks, so they share mu.
type wsSession struct {
	conn *websocket.Conn
	nc   *nats.Conn
	log  *slog.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func (s *wsSession) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsSession) reply(r wsReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	_ = s.write(websocket.TextMessage, data)
}

func (s *wsSession) subscribe(subject string) {
	if s.nc == nil {
		s.reply(wsReply{Error: "result relay unavailable"})
		return
	}
	if _, ok := s.subs[subject]; ok {
		s.reply(wsReply{Status: "already subscribed", Subject: subject})
		return
	}
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := s.write(websocket.TextMessage, msg.Data); err != nil {
			s.log.Debug("ws relay write failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		s.reply(wsReply{Error: "subscribe failed: " + err.Error()})
		return
	}
	s.subs[subject] = sub
	s.reply(wsReply{Status: "subscribed", Subject: subject})
}

func (s *wsSession) unsubscribe(subject string) {
	sub, ok := s.subs[subject]
	if !ok {
		s.reply(wsReply{Error: "not subscribed to " + subject})
		return
	}
	_ = sub.Unsubscribe()
	delete(s.subs, subject)
	s.reply(wsReply{Status: "unsubscribed", Subject: subject})
}

func (s *wsSession) close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}

// keepAlive pings the client until done is closed or a write fails.
func (s *wsSession) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// WebSocketHandler relays meeting-point results from NATS to clients that
// subscribe to a run id. A client that sends nothing receives nothing.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		s := &wsSession{
			conn: c,
			nc:   nc,
			log:  slog.Default().With("remote", c.RemoteAddr().String()),
			subs: make(map[string]*nats.Subscription),
		}
		s.log.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		done := make(chan struct{})
		go s.keepAlive(done)
		defer func() {
			close(done)
			s.close()
			s.log.Info("ws client disconnected", "subscriptions", len(s.subs))
		}()

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m wsMessage
			if err := json.Unmarshal(data, &m); err != nil {
				s.reply(wsReply{Error: "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				s.subscribe(resultSubject(m.RunID))
			case "unsubscribe":
				s.unsubscribe(resultSubject(m.RunID))
			default:
				s.reply(wsReply{Error: "unknown action: " + m.Action})
			}
		}
	}
}
