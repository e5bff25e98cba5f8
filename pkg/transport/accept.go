package transport

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/vnuge/fbm/internal/logctx"
)

// Accept upgrades an incoming HTTP request to a WebSocket connection and
// returns an open server-side [Channel]. It validates the handshake
// headers itself rather than delegating to net/http, mirroring the
// hijack-based upgrade the pack's minimal WebSocket server demonstrates,
// since the standard library has no server-side WebSocket upgrader.
//
// On failure, Accept returns a non-nil error and the caller must not write
// to w afterward. Failures before the connection is hijacked also write an
// HTTP error response to w; failures after it do not.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, NegotiationParams, error) {
	params, err := ParseNegotiationParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, params, err
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if err := validateUpgradeRequest(r, key); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, params, err
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err := fmt.Errorf("response writer does not support hijacking: %T", w)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, params, err
	}

	netConn, rw, err := hj.Hijack()
	if err != nil {
		return nil, params, fmt.Errorf("hijack connection: %w", err)
	}
	if tcp, ok := netConn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if err := writeHandshakeResponse(rw.Writer, key); err != nil {
		_ = netConn.Close()
		return nil, params, fmt.Errorf("write handshake response: %w", err)
	}

	logger := logctx.From(r.Context()).With().
		Str("role", "fbm-server").
		Str("remote_addr", r.RemoteAddr).
		Logger()
	conn := newConn(rw, netConn, false, logger)
	logger.Debug().Msg("FBM transport accepted")
	return conn, params, nil
}

func validateUpgradeRequest(r *http.Request, key string) error {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return fmt.Errorf("missing or invalid Upgrade header: %q", r.Header.Get("Upgrade"))
	}
	if !hasUpgradeToken(r.Header.Get("Connection")) {
		return fmt.Errorf("missing Upgrade token in Connection header: %q", r.Header.Get("Connection"))
	}
	if key == "" {
		return fmt.Errorf("missing Sec-WebSocket-Key header")
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return fmt.Errorf("unsupported Sec-WebSocket-Version: %q", r.Header.Get("Sec-WebSocket-Version"))
	}
	return nil
}

func hasUpgradeToken(connection string) bool {
	for _, part := range strings.Split(connection, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
			return true
		}
	}
	return false
}

func writeHandshakeResponse(w *bufio.Writer, key string) error {
	if _, err := w.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if _, err := w.WriteString("Upgrade: websocket\r\n"); err != nil {
		return err
	}
	if _, err := w.WriteString("Connection: Upgrade\r\n"); err != nil {
		return err
	}
	if _, err := w.WriteString("Sec-WebSocket-Accept: " + expectedAccept(key) + "\r\n\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
