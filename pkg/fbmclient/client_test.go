package fbmclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/pool"
	"github.com/vnuge/fbm/pkg/transport"
)

// fakeChannel is a test double for [transport.Channel]: SendBinary
// reassembles a complete logical message and publishes it on sent, while
// Recv serves frames pushed onto incoming — simulating a WebSocket peer
// without any real network I/O.
type fakeChannel struct {
	mu       sync.Mutex
	building []byte

	sent     chan []byte
	incoming chan transport.Frame

	closed   bool
	closeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		sent:     make(chan []byte, 16),
		incoming: make(chan transport.Frame, 16),
	}
}

func (f *fakeChannel) SendBinary(_ context.Context, data []byte, final bool) error {
	f.mu.Lock()
	f.building = append(f.building, data...)
	if final {
		msg := f.building
		f.building = nil
		f.mu.Unlock()
		f.sent <- msg
		return nil
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case fr, ok := <-f.incoming:
		if !ok {
			return transport.Frame{}, transport.ErrClosed
		}
		return fr, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (f *fakeChannel) Close(transport.CloseStatus, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
}

// pushResponse builds a full FBM response message and delivers it as one
// unfragmented incoming frame.
func (f *fakeChannel) pushResponse(messageId int32, headerCmd fbm.HeaderCommand, headerValue string, payload []byte) {
	f.incoming <- transport.Frame{Data: buildResponse(messageId, headerCmd, headerValue, payload), Final: true}
}

func buildResponse(messageId int32, headerCmd fbm.HeaderCommand, headerValue string, payload []byte) []byte {
	acc := fbm.NewAccumulator(make([]byte, 256+len(payload)))
	_ = fbm.WriteMessageIdHeader(acc, messageId)
	if headerCmd != fbm.HeaderReserved {
		_ = fbm.WriteHeader(acc, headerCmd, headerValue)
	}
	_ = fbm.WriteBody(acc, fbm.ContentTypeBinary, payload)
	return acc.Bytes()
}

func newTestClient(channel transport.Channel) *Client {
	c := &Client{
		channel:      channel,
		closedSignal: make(chan struct{}),
		sendSem:      make(chan struct{}, 1),
		params: Params{
			RequestBufferSize:   256,
			MaxHeaderBufferSize: 256,
			MaxMessageSize:      1 << 20,
			RequestPoolQuota:    8,
		},
	}
	c.sendSem <- struct{}{}
	c.pool = newRequestPool(c.params)
	return c
}

func newRequestPool(p Params) *pool.Pool[*fbm.Request] {
	return pool.New(p.RequestPoolQuota, func() *fbm.Request {
		return fbm.NewRequest(make([]byte, p.RequestBufferSize))
	})
}

func TestSendRoundTrip(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)
	go c.receiveLoop(context.Background())

	req, err := c.RentRequest()
	if err != nil {
		t.Fatalf("RentRequest() error = %v", err)
	}
	if err := req.WriteHeader(0x10, "Hello"); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := req.WriteBody(fbm.ContentTypeBinary, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}); err != nil {
		t.Fatalf("WriteBody() error = %v", err)
	}

	done := make(chan struct{})
	var resp *fbm.Response
	var sendErr error
	go func() {
		resp, sendErr = c.Send(context.Background(), req)
		close(done)
	}()

	sentMsg := <-ch.sent
	line, _ := fbm.ReadLine(sentMsg, 0)
	if id := fbm.GetMessageId(line); id != req.MessageId {
		t.Fatalf("sent message id = %d, want %d", id, req.MessageId)
	}

	ch.pushResponse(req.MessageId, 0x11, "World", []byte{0x0A, 0x0B})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send() did not return")
	}

	if sendErr != nil {
		t.Fatalf("Send() error = %v", sendErr)
	}
	value, ok := resp.Header(0x11)
	if !ok || string(value) != "World" {
		t.Errorf("response header 0x11 = %q, ok=%v, want %q", value, ok, "World")
	}
	if !bytes.Equal(resp.Payload(), []byte{0x0A, 0x0B}) {
		t.Errorf("response payload = %v, want %v", resp.Payload(), []byte{0x0A, 0x0B})
	}
}

func TestSendDuplicateMessageIdFails(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)
	go c.receiveLoop(context.Background())

	req, _ := c.RentRequest()
	_ = req.WriteBody(fbm.ContentTypeBinary, nil)

	go func() { _, _ = c.Send(context.Background(), req) }()
	<-ch.sent // wait until it's actually in the table

	dup := fbm.NewRequest(make([]byte, 64))
	_ = dup.Reset(req.MessageId)
	_ = dup.WriteBody(fbm.ContentTypeBinary, nil)

	if _, err := c.Send(context.Background(), dup); err == nil {
		t.Error("Send() with duplicate MessageId = nil error, want error")
	}

	ch.pushResponse(req.MessageId, fbm.HeaderReserved, "", nil)
}

func TestInterleavedRequestsRespondOutOfOrder(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)
	go c.receiveLoop(context.Background())

	type result struct {
		id   int32
		resp *fbm.Response
		err  error
	}
	results := make(chan result, 3)

	var reqs [3]*fbm.Request
	for i := range reqs {
		req, err := c.RentRequest()
		if err != nil {
			t.Fatalf("RentRequest() error = %v", err)
		}
		_ = req.WriteBody(fbm.ContentTypeBinary, nil)
		reqs[i] = req
	}

	for _, req := range reqs {
		req := req
		go func() {
			resp, err := c.Send(context.Background(), req)
			results <- result{id: req.MessageId, resp: resp, err: err}
		}()
	}

	sentIDs := make(map[int32]bool)
	for range reqs {
		msg := <-ch.sent
		line, _ := fbm.ReadLine(msg, 0)
		sentIDs[fbm.GetMessageId(line)] = true
	}
	if len(sentIDs) != 3 {
		t.Fatalf("expected 3 distinct sent MessageIds, got %d", len(sentIDs))
	}

	// Respond in reverse order of request creation.
	for i := len(reqs) - 1; i >= 0; i-- {
		ch.pushResponse(reqs[i].MessageId, fbm.HeaderReserved, "", []byte{byte(i)})
	}

	seen := map[int32]bool{}
	for range reqs {
		select {
		case r := <-results:
			if r.err != nil {
				t.Errorf("Send() for id %d error = %v", r.id, r.err)
				continue
			}
			seen[r.id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for interleaved responses")
		}
	}
	for _, req := range reqs {
		if !seen[req.MessageId] {
			t.Errorf("never got a response for MessageId %d", req.MessageId)
		}
	}
}

func TestSendCancellationMidWaitUnblocksAndRemovesFromTable(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)
	go c.receiveLoop(context.Background())

	req, _ := c.RentRequest()
	_ = req.WriteBody(fbm.ContentTypeBinary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, req)
		done <- err
	}()

	<-ch.sent // request is now in the active-request table
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Send() after cancellation = nil error, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send() did not unblock after cancellation")
	}

	if _, ok := c.requests.Load(req.MessageId); ok {
		t.Error("cancelled request is still present in the active-request table")
	}

	// A later unsolicited response with the same MessageId is silently dropped.
	ch.pushResponse(req.MessageId, fbm.HeaderReserved, "", nil)
}

func TestTeardownUnblocksAllPendingRequests(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)
	go c.receiveLoop(context.Background())

	req1, _ := c.RentRequest()
	_ = req1.WriteBody(fbm.ContentTypeBinary, nil)
	req2, _ := c.RentRequest()
	_ = req2.WriteBody(fbm.ContentTypeBinary, nil)

	done := make(chan error, 2)
	go func() { _, err := c.Send(context.Background(), req1); done <- err }()
	go func() { _, err := c.Send(context.Background(), req2); done <- err }()

	<-ch.sent
	<-ch.sent

	ch.Close(transport.StatusNormalClosure, "")

	for range 2 {
		select {
		case err := <-done:
			if err == nil {
				t.Error("Send() after teardown = nil error, want error")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending Send() did not unblock on teardown")
		}
	}

	select {
	case <-c.ConnectionClosed():
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectionClosed() channel never closed")
	}
}

func TestControlFrameRoutedSeparatelyFromActiveRequestTable(t *testing.T) {
	ch := newFakeChannel()
	var gotPayload []byte
	var mu sync.Mutex
	c := &Client{
		channel:      ch,
		closedSignal: make(chan struct{}),
		sendSem:      make(chan struct{}, 1),
		params:       Params{MaxHeaderBufferSize: 256, MaxMessageSize: 1 << 20},
		onControl: func(payload []byte) {
			mu.Lock()
			gotPayload = append([]byte(nil), payload...)
			mu.Unlock()
		},
	}
	c.sendSem <- struct{}{}
	c.pool = newRequestPool(c.params)
	go c.receiveLoop(context.Background())

	acc := fbm.NewAccumulator(make([]byte, 64))
	_ = fbm.WriteMessageIdHeader(acc, fbm.ControlMessageId)
	_ = fbm.WriteBody(acc, fbm.ContentTypeBinary, []byte("ping"))
	ch.incoming <- transport.Frame{Data: acc.Bytes(), Final: true}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := gotPayload
		mu.Unlock()
		if got != nil {
			if string(got) != "ping" {
				t.Errorf("control payload = %q, want %q", got, "ping")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("control handler was never invoked")
}

func TestNextMessageIdNeverReturnsReservedValues(t *testing.T) {
	c := &Client{}
	c.nextID.Store(int32(binary.BigEndian.Uint32([]byte{0x7f, 0xff, 0xff, 0xfe})))
	for range 4 {
		if id := c.nextMessageId(); id <= 0 {
			t.Errorf("nextMessageId() = %d, want > 0", id)
		}
	}
}
