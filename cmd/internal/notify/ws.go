package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingEvery    = 30 * time.Second
)

// Feed is the websocket entrypoint for the host event stream.
//
// Auth resolves the subscribing host from the request; it is supplied by the
// HTTP layer so this package stays free of header conventions. The feed is
// read-only for clients: inbound frames are discarded.
type Feed struct {
	log  *slog.Logger
	hub  *Hub
	auth func(*http.Request) (hostID string, ok bool)

	// Origin patterns forwarded to websocket.Accept for cross-origin clients.
	originPatterns []string
}

// NewFeed constructs a Feed.
func NewFeed(log *slog.Logger, hub *Hub, auth func(*http.Request) (string, bool), originPatterns []string) *Feed {
	return &Feed{log: log, hub: hub, auth: auth, originPatterns: originPatterns}
}

// HandleWS upgrades the connection and streams the host's events until the
// client disconnects or the server shuts down.
func (f *Feed) HandleWS(w http.ResponseWriter, r *http.Request) {
	if f == nil || f.hub == nil || f.auth == nil {
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}
	hostID, ok := f.auth(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: f.originPatterns,
	})
	if err != nil {
		if f.log != nil {
			f.log.Warn("ws.accept.fail", "err", err)
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// CloseRead discards client frames and cancels the context on disconnect.
	ctx := conn.CloseRead(r.Context())

	sub := f.hub.Subscribe(hostID)
	defer f.hub.Unsubscribe(sub)

	if f.log != nil {
		f.log.Info("ws.subscribe", "host_id", hostID)
	}

	pings := time.NewTicker(wsPingEvery)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
