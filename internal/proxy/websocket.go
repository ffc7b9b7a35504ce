package proxy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/avlabs/authgate/internal/observability"
)

// websocketRelay proxies WebSocket upgrades by dialing the upstream and
// copying messages in both directions until either side closes.
type websocketRelay struct {
	logger observability.Logger
}

// upgrader upgrades client connections. Origin was already stripped for
// the upstream; the gate authenticated the request before it got here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// relay dials the upstream counterpart of the request and bridges the
// two connections.
func (wr *websocketRelay) relay(w http.ResponseWriter, r *http.Request, target *url.URL) {
	backendURL := backendWSURL(target, r)

	header := relayRequestHeaders(r)
	backendConn, resp, err := websocket.DefaultDialer.DialContext(r.Context(), backendURL, header)
	if err != nil {
		wr.logger.Error("websocket upstream dial failed",
			observability.String("url", backendURL),
			observability.Error(err),
		)
		if resp != nil {
			defer resp.Body.Close()
			for k, vv := range resp.Header {
				for _, v := range vv {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(resp.StatusCode)
			return
		}
		ServeMaintenance(w)
		return
	}
	defer backendConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wr.logger.Error("websocket client upgrade failed", observability.Error(err))
		return
	}
	defer clientConn.Close()

	errCh := make(chan error, 2)
	go copyMessages(clientConn, backendConn, errCh)
	go copyMessages(backendConn, clientConn, errCh)

	// First error from either direction tears down both connections via
	// the deferred closes.
	err = <-errCh
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		wr.logger.Debug("websocket relay ended", observability.Error(err))
	}
}

// copyMessages pumps messages from src to dst until a read or write
// fails.
func copyMessages(dst, src *websocket.Conn, errCh chan<- error) {
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			_ = dst.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			errCh <- err
			return
		}
		if err := dst.WriteMessage(msgType, msg); err != nil {
			errCh <- err
			return
		}
	}
}

// backendWSURL maps the client request onto the upstream's WebSocket
// origin, preserving path and query.
func backendWSURL(target *url.URL, r *http.Request) string {
	scheme := "ws"
	if target.Scheme == "https" {
		scheme = "wss"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     target.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	return u.String()
}

// relayRequestHeaders forwards request headers to the upstream minus
// hop-by-hop and WebSocket handshake headers, which the dialer manages
// itself.
func relayRequestHeaders(r *http.Request) http.Header {
	header := http.Header{}
	for k, vv := range r.Header {
		if isRelaySkippedHeader(k) {
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	return header
}

func isRelaySkippedHeader(key string) bool {
	switch strings.ToLower(key) {
	case "upgrade", "connection", "sec-websocket-key", "sec-websocket-version",
		"sec-websocket-extensions", "sec-websocket-protocol",
		"origin", "referer":
		return true
	}
	return false
}
