package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu      sync.Mutex
	writes  []Message
	written chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan struct{}, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}
func (c *fakeConn) Close() error { c.once.Do(func() { close(c.closed) }); return nil }

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	var typ MessageType
	switch mt {
	case websocket.TextMessage:
		typ = JSONMessage
	case websocket.BinaryMessage:
		typ = BinaryMessage
	default:
		return nil
	}
	c.mu.Lock()
	c.writes = append(c.writes, Message{Type: typ, Data: data})
	c.mu.Unlock()
	c.written <- struct{}{}
	return nil
}

func (c *fakeConn) waitWrites(t *testing.T, n int) []Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for write %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	h := New("test", nil)
	go h.Run()
	defer h.Stop()

	conn := newFakeConn()
	client := NewClient(h, conn, NewJSONMessage([]byte(`{"hello":true}`)))
	go client.Run()

	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	writes := conn.waitWrites(t, 3)
	if string(writes[0].Data) != `{"hello":true}` {
		t.Errorf("initial message = %s", writes[0].Data)
	}
	if writes[1].Type != JSONMessage || string(writes[1].Data) != `{"n":1}` {
		t.Errorf("json message = %+v", writes[1])
	}
	if writes[2].Type != BinaryMessage || len(writes[2].Data) != 2 {
		t.Errorf("binary message = %+v", writes[2])
	}

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHubStop(t *testing.T) {
	h := New("stop", nil)
	go h.Run()
	waitFor(t, h.IsRunning)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Stop()
	h.Stop()
	waitFor(t, func() bool { return !h.IsRunning() })
	if h.ClientCount() != 0 {
		t.Error("clients should be removed on stop")
	}
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Error("connection was not closed")
	}
}

func TestHubBroadcastWithoutRun(t *testing.T) {
	h := New("idle", nil)
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{1})
	}
	if h.Dropped() == 0 {
		t.Error("broadcasts beyond the queue should be dropped")
	}
	if h.Name() != "idle" {
		t.Errorf("Name = %q", h.Name())
	}
}
