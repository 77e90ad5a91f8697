package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mutantcacti/o/internal/body"
	"github.com/mutantcacti/o/internal/config"
	"github.com/mutantcacti/o/internal/evaluator"
	"github.com/mutantcacti/o/internal/mind"
	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/provider/httpthinker"
	"github.com/mutantcacti/o/internal/provider/mqttchannel"
	"github.com/mutantcacti/o/internal/provider/wschannel"
	"github.com/mutantcacti/o/internal/world"
)

// rootEntity is the bootstrap entity every subcommand spawns before
// doing anything else, mirroring a shell's implicit root user.
const rootEntity = world.EntityID("@root")

// runtime bundles the wired-up core components a subcommand drives.
type runtime struct {
	World     *world.World
	Store     *world.Store
	Mind      *mind.Mind
	Evaluator *evaluator.Evaluator
	Scheduler *body.Scheduler
	Channel   provider.ChannelSubstrate
}

// bootstrap constructs World, the on-disk Store, the dispatcher, the
// condition evaluator, and the scheduler, wiring whichever
// provider the config selects. @root is spawned unconditionally so
// every subcommand has at least one entity to execute commands as.
//
// The Mind and its Evaluator are mutually referential (the evaluator
// dispatches embedded queries through the Mind; the Mind's "eval"
// operation needs the Evaluator), so they are wired in two steps
// rather than through the constructor's functional options.
func bootstrap(logger *slog.Logger, cfg *config.Config) (*runtime, error) {
	if err := openOutputRoot(cfg.OutputRoot); err != nil {
		return nil, err
	}

	w := world.New()
	if err := w.Spawn(rootEntity); err != nil {
		return nil, err
	}

	store, err := world.NewStore(cfg.StateDir, cfg.MemoryDir, logger)
	if err != nil {
		return nil, err
	}
	if err := store.RestoreWorld(w); err != nil {
		return nil, err
	}

	m := mind.New(w, store, cfg.OutputRoot)
	eval := evaluator.New(m)
	m.SetEvaluator(eval)

	channel := buildChannel(cfg, logger)
	if channel != nil {
		m.SetProviderHooks(channelHooks{channel})
	}
	thinker := buildThinker(cfg, logger)

	sched := body.New(w, store, m, eval, thinker, channel, cfg.TickInterval, cfg.MaxTicks, logger)

	return &runtime{World: w, Store: store, Mind: m, Evaluator: eval, Scheduler: sched, Channel: channel}, nil
}

// channelHooks adapts a provider.ChannelSubstrate to
// operations.ProviderHooks so "spawn" can call EnsureChannels once per
// newly registered entity.
type channelHooks struct {
	channel provider.ChannelSubstrate
}

func (h channelHooks) EnsureChannels(ctx context.Context, entity world.EntityID) error {
	return h.channel.EnsureChannels(ctx, entity)
}

func buildThinker(cfg *config.Config, logger *slog.Logger) provider.Thinker {
	switch cfg.Provider.Thinker {
	case "http":
		if cfg.Provider.HTTP.Endpoint == "" {
			logger.Warn("provider.thinker is http but no endpoint configured, leaving thinker disabled")
			return nil
		}
		return httpthinker.New(httpthinker.Config{
			Endpoint: cfg.Provider.HTTP.Endpoint,
			Timeout:  cfg.Provider.HTTP.Timeout,
		})
	default:
		return nil
	}
}

func buildChannel(cfg *config.Config, logger *slog.Logger) provider.ChannelSubstrate {
	switch cfg.Provider.Channel {
	case "ws":
		ch := wschannel.New(logger)
		if cfg.Provider.WebSocket.ListenAddress != "" {
			go func() {
				if err := http.ListenAndServe(cfg.Provider.WebSocket.ListenAddress, ch); err != nil {
					logger.Error("wschannel: listener exited", "error", err)
				}
			}()
			logger.Info("wschannel listening", "address", cfg.Provider.WebSocket.ListenAddress)
		}
		return ch
	case "mqtt":
		return mqttchannel.New(mqttchannel.Config{
			BrokerURL: cfg.Provider.MQTT.BrokerURL,
			ClientID:  cfg.Provider.MQTT.ClientID,
		}, logger)
	default:
		return nil
	}
}

// mqttStarter is satisfied by mqttchannel.Channel. Starting the broker
// connection needs a context, which only exists once a subcommand has
// one in hand, so it happens as a separate step after buildChannel
// rather than inside it.
type mqttStarter interface {
	Start(ctx context.Context) error
}

// startChannel connects a channel substrate that needs an explicit
// start step (currently only mqttchannel). Others are ready to use as
// soon as they are constructed.
func startChannel(ctx context.Context, channel provider.ChannelSubstrate, logger *slog.Logger) {
	starter, ok := channel.(mqttStarter)
	if !ok {
		return
	}
	if err := starter.Start(ctx); err != nil {
		logger.Error("provider channel failed to start", "error", err)
	}
}

// openOutputRoot ensures OutputRoot exists before publish operations
// ever try to write under it.
func openOutputRoot(root string) error {
	return os.MkdirAll(root, 0o755)
}
