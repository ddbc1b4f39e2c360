package server

import (
	"context"
	"mpc_match/internal/model"
	"mpc_match/internal/utils/log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

type wsClient struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsClient) send(n *model.Notification) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(n)
}

// HandleWS upgrades an authenticated client and flushes notifications queued
// while it was offline. A newer connection for the same user replaces the
// older one.
func (s *HttpServer) HandleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.deps.Tokens.Resolve(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &wsClient{conn: conn}
		s.mu.Lock()
		if old, ok := s.mapper[userID]; ok {
			old.conn.Close()
		}
		s.mapper[userID] = client
		s.mu.Unlock()

		go s.readLoop(userID, client)

		if err := s.forwardQueued(context.Background(), userID, client); err != nil {
			log.Error("forward queued notifications failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// readLoop only watches for the client going away; clients never send.
func (s *HttpServer) readLoop(userID string, client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			log.Debug("websocket closed", zap.String("user_id", userID), zap.Error(err))
			s.mu.Lock()
			if s.mapper[userID] == client {
				delete(s.mapper, userID)
			}
			s.mu.Unlock()
			client.conn.Close()
			return
		}
	}
}

func (s *HttpServer) forwardQueued(ctx context.Context, userID string, client *wsClient) error {
	queued, err := s.deps.Mailbox.Drain(ctx, userID)
	if err != nil {
		return err
	}
	for i, n := range queued {
		if err := client.send(n); err != nil {
			// put back what did not make it
			for _, rest := range queued[i:] {
				if perr := s.deps.Mailbox.Push(ctx, userID, rest); perr != nil {
					return perr
				}
			}
			return err
		}
	}
	return nil
}

// deliver sends n to userID if connected, otherwise queues it.
func (s *HttpServer) deliver(ctx context.Context, userID string, n *model.Notification) {
	s.mu.Lock()
	client := s.mapper[userID]
	s.mu.Unlock()

	if client != nil {
		if err := client.send(n); err == nil {
			return
		}
	}
	if err := s.deps.Mailbox.Push(ctx, userID, n); err != nil {
		log.Error("queue notification failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// MatchRecorded tells both users of m about the other.
func (s *HttpServer) MatchRecorded(ctx context.Context, m *model.Match) {
	for _, pair := range [][2]string{{m.UserA, m.UserB}, {m.UserB, m.UserA}} {
		to, other := pair[0], pair[1]
		peer, err := s.deps.Registry.GetUser(ctx, other)
		if err != nil {
			log.Error("resolve matched user failed", zap.String("user_id", other), zap.Error(err))
			continue
		}
		s.deliver(ctx, to, &model.Notification{
			Type:   model.NotificationMatch,
			To:     to,
			Handle: peer.Handle,
			At:     m.CreatedAt,
		})
	}
}

func (s *HttpServer) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.mapper {
		c.conn.Close()
		delete(s.mapper, id)
	}
}
