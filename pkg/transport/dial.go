package transport

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // required by the WebSocket handshake
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vnuge/fbm/internal/logctx"
)

// NegotiationParams are the FBM-level buffer-size parameters appended to
// the handshake URL as query parameters.
type NegotiationParams struct {
	// ReceiveBufferSize ("b"): size of the client's receive buffer.
	ReceiveBufferSize int
	// MaxHeaderBufferSize ("hb"): maximum header-buffer size.
	MaxHeaderBufferSize int
	// MaxMessageSize ("mx"): maximum accepted logical message size.
	MaxMessageSize int
}

func (p NegotiationParams) appendTo(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse FBM URL: %w", err)
	}
	q := u.Query()
	q.Set("b", strconv.Itoa(p.ReceiveBufferSize))
	q.Set("hb", strconv.Itoa(p.MaxHeaderBufferSize))
	q.Set("mx", strconv.Itoa(p.MaxMessageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseNegotiationParams reads "b", "hb", "mx" back off an incoming
// handshake request's query string, for the server half of the handshake.
func ParseNegotiationParams(values url.Values) (NegotiationParams, error) {
	var p NegotiationParams
	var err error
	if p.ReceiveBufferSize, err = strconv.Atoi(values.Get("b")); err != nil {
		return p, fmt.Errorf("invalid %q negotiation parameter: %w", "b", err)
	}
	if p.MaxHeaderBufferSize, err = strconv.Atoi(values.Get("hb")); err != nil {
		return p, fmt.Errorf("invalid %q negotiation parameter: %w", "hb", err)
	}
	if p.MaxMessageSize, err = strconv.Atoi(values.Get("mx")); err != nil {
		return p, fmt.Errorf("invalid %q negotiation parameter: %w", "mx", err)
	}
	if p.ReceiveBufferSize <= 0 || p.MaxHeaderBufferSize <= 0 || p.MaxMessageSize <= 0 {
		return p, fmt.Errorf("negotiation parameters must be positive: %+v", p)
	}
	return p, nil
}

// DialOpt configures [Dial].
type DialOpt func(*dialOptions)

type dialOptions struct {
	client  *http.Client
	headers http.Header
}

// WithHTTPClient lets callers override the [http.Client] used for the
// handshake request. Do not set a Timeout on it: that would cut off the
// long-lived connection beyond the initial handshake. Use
// [context.WithTimeout] with the context passed to Dial instead.
func WithHTTPClient(hc *http.Client) DialOpt {
	return func(o *dialOptions) { o.client = hc }
}

// WithHTTPHeader adds a single header to the handshake request.
func WithHTTPHeader(key, value string) DialOpt {
	return func(o *dialOptions) { o.headers.Add(key, value) }
}

var acceptGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// Dial performs the WebSocket handshake against wsURL, appending the FBM
// negotiation query parameters, and returns an open [Channel].
func Dial(ctx context.Context, wsURL string, params NegotiationParams, opts ...DialOpt) (*Conn, error) {
	o := &dialOptions{headers: http.Header{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = adjustRedirects(*http.DefaultClient)
	} else {
		o.client = adjustRedirects(*o.client)
	}

	negotiatedURL, err := params.appendTo(wsURL)
	if err != nil {
		return nil, err
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate handshake nonce: %w", err)
	}

	req, err := handshakeRequest(ctx, negotiatedURL, nonce, o.headers)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send handshake request: %w", err)
	}
	if err := checkHandshakeResponse(resp, nonce); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, fmt.Errorf("handshake response body type: got %T, want io.ReadWriteCloser", resp.Body)
	}

	rw := bufio.NewReadWriter(bufio.NewReader(rwc), bufio.NewWriter(rwc))
	logger := logctx.From(ctx).With().Str("role", "fbm-client").Logger()
	conn := newConn(rw, rwc, true, logger)
	logger.Debug().Msg("FBM transport connected")
	return conn, nil
}

func adjustRedirects(c http.Client) *http.Client {
	orig := c.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		switch req.URL.Scheme {
		case "ws":
			req.URL.Scheme = "http"
		case "wss":
			req.URL.Scheme = "https"
		}
		if orig != nil {
			return orig(req, via)
		}
		return nil
	}
	return &c
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func handshakeRequest(ctx context.Context, wsURL, nonce string, headers http.Header) (*http.Request, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse FBM URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unexpected URL scheme: %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create handshake request: %w", err)
	}
	req.Header = headers.Clone()
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", nonce)
	req.Header.Set("Sec-WebSocket-Version", "13")
	return req, nil
}

func checkHandshakeResponse(resp *http.Response, nonce string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("handshake response status: got %d, want %d (%s)",
			resp.StatusCode, http.StatusSwitchingProtocols, body)
	}
	if err := checkHeader(resp.Header, "Upgrade", "websocket"); err != nil {
		return err
	}
	if err := checkHeader(resp.Header, "Connection", "Upgrade"); err != nil {
		return err
	}
	return checkHeader(resp.Header, "Sec-WebSocket-Accept", expectedAccept(nonce))
}

func checkHeader(h http.Header, key, want string) error {
	if got := h.Get(key); !strings.EqualFold(got, want) {
		return fmt.Errorf("handshake response header %q: got %q, want %q", key, got, want)
	}
	return nil
}

func expectedAccept(nonce string) string {
	h := sha1.New() //nolint:gosec // required by the WebSocket handshake
	h.Write([]byte(nonce))
	h.Write(acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
