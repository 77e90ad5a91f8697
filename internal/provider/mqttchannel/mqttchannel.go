// Package mqttchannel implements internal/provider's ChannelSubstrate
// over an MQTT broker: each entity gets an inbound topic o/<entity>/in
// a human or external system publishes commands to, and an outbound
// topic o/<entity>/out the scheduler publishes execution results to.
// Inbound commands buffer in a per-entity non-blocking queue so a
// slow consumer never backs up into the broker connection.
package mqttchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

// inboundBuffer bounds the queue depth per entity topic.
const inboundBuffer = 32

// Config configures a Channel's broker connection.
type Config struct {
	BrokerURL string
	ClientID  string
}

// inboundMessage is the wire shape a publisher sends on o/<entity>/in.
type inboundMessage struct {
	Command string `json:"command"`
}

// outboundMessage is the wire shape published on o/<entity>/out.
type outboundMessage struct {
	Clock   int    `json:"clock"`
	Command string `json:"command"`
	Output  string `json:"output"`
}

// Channel is a ChannelSubstrate backed by MQTT topics, one inbound/
// outbound topic pair per entity.
type Channel struct {
	cfg Config
	log *slog.Logger
	cm  *autopaho.ConnectionManager

	mu       sync.Mutex
	inboxes  map[world.EntityID]chan string
	watching map[world.EntityID]bool
}

// New builds a Channel but does not connect. Call Start to begin.
func New(cfg Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		cfg:      cfg,
		log:      logger,
		inboxes:  make(map[world.EntityID]chan string),
		watching: make(map[world.EntityID]bool),
	}
}

// Start connects to the broker, resubscribing to every watched
// entity's inbound topic on (re)connect, and returns once the initial
// connection attempt has been made (autopaho retries in the
// background after that, after the initial attempt).
func (c *Channel) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqttchannel: parse broker url: %w", err)
	}

	clientID := c.cfg.ClientID
	if clientID == "" {
		clientID = "o-runtime"
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.log.Info("mqttchannel: connected to broker", "broker", c.cfg.BrokerURL)
			c.resubscribeAll(ctx, cm)
		},
		OnConnectError: func(err error) {
			c.log.Warn("mqttchannel: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttchannel: connect: %w", err)
	}
	c.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		entity, ok := entityFromInTopic(pr.Packet.Topic)
		if !ok {
			return true, nil
		}
		var msg inboundMessage
		if err := json.Unmarshal(pr.Packet.Payload, &msg); err != nil {
			c.log.Warn("mqttchannel: malformed inbound payload", "topic", pr.Packet.Topic, "error", err)
			return true, nil
		}
		c.enqueue(entity, msg.Command)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.log.Warn("mqttchannel: initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Channel) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}

func (c *Channel) enqueue(entity world.EntityID, command string) {
	c.mu.Lock()
	ch, ok := c.inboxes[entity]
	if !ok {
		ch = make(chan string, inboundBuffer)
		c.inboxes[entity] = ch
	}
	c.mu.Unlock()

	select {
	case ch <- command:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- command:
		default:
		}
	}
}

func (c *Channel) resubscribeAll(ctx context.Context, cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	entities := make([]world.EntityID, 0, len(c.watching))
	for e := range c.watching {
		entities = append(entities, e)
	}
	c.mu.Unlock()

	for _, e := range entities {
		c.subscribeEntity(ctx, cm, e)
	}
}

func (c *Channel) subscribeEntity(ctx context.Context, cm *autopaho.ConnectionManager, entity world.EntityID) {
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: inTopic(entity), QoS: 1}},
	}); err != nil {
		c.log.Warn("mqttchannel: subscribe failed", "entity", entity, "error", err)
	}
}

// ReadCommand returns a pending command for entity, if one has
// arrived on its inbound topic. Never blocks.
func (c *Channel) ReadCommand(_ context.Context, entity world.EntityID) (string, bool, error) {
	c.mu.Lock()
	ch, ok := c.inboxes[entity]
	c.mu.Unlock()
	if !ok {
		return "", false, nil
	}
	select {
	case cmd := <-ch:
		return cmd, true, nil
	default:
		return "", false, nil
	}
}

// WriteOutput publishes an execution's result on entity's outbound
// topic.
func (c *Channel) WriteOutput(ctx context.Context, entity world.EntityID, record provider.OutputRecord) error {
	if c.cm == nil {
		return nil
	}
	payload, err := json.Marshal(outboundMessage{Clock: record.Clock, Command: record.Command, Output: record.Output})
	if err != nil {
		return fmt.Errorf("mqttchannel: marshal output: %w", err)
	}
	_, err = c.cm.Publish(ctx, &paho.Publish{
		Topic:   outTopic(entity),
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("mqttchannel: publish: %w", err)
	}
	return nil
}

// EnsureChannels registers entity's inbound topic for subscription and
// subscribes immediately if already connected.
func (c *Channel) EnsureChannels(ctx context.Context, entity world.EntityID) error {
	c.mu.Lock()
	if c.watching[entity] {
		c.mu.Unlock()
		return nil
	}
	c.watching[entity] = true
	if _, ok := c.inboxes[entity]; !ok {
		c.inboxes[entity] = make(chan string, inboundBuffer)
	}
	cm := c.cm
	c.mu.Unlock()

	if cm != nil {
		c.subscribeEntity(ctx, cm, entity)
	}
	return nil
}

func inTopic(entity world.EntityID) string  { return "o/" + entity.Name() + "/in" }
func outTopic(entity world.EntityID) string { return "o/" + entity.Name() + "/out" }

func entityFromInTopic(topic string) (world.EntityID, bool) {
	const prefix, suffix = "o/", "/in"
	if len(topic) <= len(prefix)+len(suffix) || topic[:len(prefix)] != prefix || topic[len(topic)-len(suffix):] != suffix {
		return "", false
	}
	name := topic[len(prefix): len(topic)-len(suffix)]
	return world.NewEntityID(name), true
}
