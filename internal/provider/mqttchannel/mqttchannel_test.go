package mqttchannel

import (
	"context"
	"testing"

	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

func TestTopicNaming(t *testing.T) {
	alice := world.NewEntityID("alice")
	if got := inTopic(alice); got != "o/alice/in" {
		t.Fatalf("got %q", got)
	}
	if got := outTopic(alice); got != "o/alice/out" {
		t.Fatalf("got %q", got)
	}
	entity, ok := entityFromInTopic("o/alice/in")
	if !ok || entity != alice {
		t.Fatalf("got %q, %v", entity, ok)
	}
	if _, ok := entityFromInTopic("frigate/events"); ok {
		t.Fatal("expected non-matching topic to report ok=false")
	}
}

func TestEnsureChannelsThenReadCommand(t *testing.T) {
	c := New(Config{BrokerURL: "tcp://localhost:1883"}, nil)
	alice := world.NewEntityID("alice")

	if err := c.EnsureChannels(context.Background(), alice); err != nil {
		t.Fatalf("EnsureChannels: %v", err)
	}
	if _, ok, err := c.ReadCommand(context.Background(), alice); ok || err != nil {
		t.Fatalf("expected no pending command, got ok=%v err=%v", ok, err)
	}

	c.enqueue(alice, `\echo hi ---`)
	cmd, ok, err := c.ReadCommand(context.Background(), alice)
	if err != nil || !ok {
		t.Fatalf("ReadCommand: %q %v %v", cmd, ok, err)
	}
	if cmd != `\echo hi ---` {
		t.Fatalf("got %q", cmd)
	}
}

func TestReadCommand_UnknownEntityIsNotOK(t *testing.T) {
	c := New(Config{}, nil)
	_, ok, err := c.ReadCommand(context.Background(), world.NewEntityID("nobody"))
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an entity never registered")
	}
}

func TestWriteOutput_WithoutConnectionIsANoOp(t *testing.T) {
	c := New(Config{}, nil)
	err := c.WriteOutput(context.Background(), world.NewEntityID("alice"), provider.OutputRecord{})
	if err != nil {
		t.Fatalf("expected no error before Start, got %v", err)
	}
}
