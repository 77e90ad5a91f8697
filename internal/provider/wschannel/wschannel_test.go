package wschannel

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

func TestChannel_RoundTrip(t *testing.T) {
	c := New(nil)
	srv := httptest.NewServer(c)
	defer srv.Close()

	entity := world.NewEntityID("alice")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + entity.Name()
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.WriteJSON(inboundMessage{Command: `\echo hi ---`}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	var cmd string
	var ok bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cmd, ok, err = c.ReadCommand(context.Background(), entity)
		if err != nil {
			t.Fatalf("ReadCommand: %v", err)
		}
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok {
		t.Fatal("expected a queued command within the deadline")
	}
	if cmd != `\echo hi ---` {
		t.Fatalf("got %q", cmd)
	}

	if err := c.WriteOutput(context.Background(), entity, provider.OutputRecord{Clock: 1, Command: cmd, Output: "Echo: hi"}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}

	var out outboundMessage
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&out); err != nil {
		t.Fatalf("read output: %v", err)
	}
	if out.Output != "Echo: hi" {
		t.Fatalf("got %q", out.Output)
	}
}

func TestChannel_ReadCommandNoConnectionIsNotOK(t *testing.T) {
	c := New(nil)
	_, ok, err := c.ReadCommand(context.Background(), world.NewEntityID("nobody"))
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false with no attached connection")
	}
}

func TestChannel_WriteOutputWithNoConnectionDoesNotError(t *testing.T) {
	c := New(nil)
	err := c.WriteOutput(context.Background(), world.NewEntityID("nobody"), provider.OutputRecord{})
	if err != nil {
		t.Fatalf("expected a dropped write to report no error, got %v", err)
	}
}

func TestChannel_EnsureChannelsIsNoOp(t *testing.T) {
	c := New(nil)
	if err := c.EnsureChannels(context.Background(), world.NewEntityID("alice")); err != nil {
		t.Fatalf("EnsureChannels: %v", err)
	}
}
