package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/announce"
	"github.com/teslashibe/go-gesture/pkg/bridge"
	"github.com/teslashibe/go-gesture/pkg/engine"
	"github.com/teslashibe/go-gesture/pkg/feedback"
	"github.com/teslashibe/go-gesture/pkg/hardware"
	"github.com/teslashibe/go-gesture/pkg/hub"
	"github.com/teslashibe/go-gesture/pkg/store"
	"github.com/teslashibe/go-gesture/pkg/transcript"
	"github.com/teslashibe/go-gesture/pkg/web"
)

// shutdownTimeout bounds the goodbye and the final preference save.
const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper, load loader) *cobra.Command {
	var stdin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the operator API and attached devices",
		Long: `Start the interpretation engine.

Classifier samples and transcripts arrive over /ws/ingest/samples and
/ws/ingest/transcripts or the REST API. When speech.url is set the engine
also subscribes to a speech-to-text websocket. Feedback goes to the device
bridge at bridge.url, or to the log when none is configured.`,
		Example: `  gesture serve --port 8080 --bridge-url http://localhost:9000
  GESTURE_RELAY_PORT=/dev/ttyUSB0 gesture serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, stdin)
		},
	}

	f := cmd.Flags()
	f.String("port", "", "operator API port")
	f.String("bridge-url", "", "device bridge base URL")
	f.String("stt-url", "", "speech-to-text websocket URL")
	f.String("relay-port", "", "serial port of the relay board")
	f.String("responses", "", "YAML file of gesture responses")
	f.BoolVar(&stdin, "stdin", false, "read transcripts from standard input, one per line")
	v.BindPFlag("server.port", f.Lookup("port"))
	v.BindPFlag("bridge.url", f.Lookup("bridge-url"))
	v.BindPFlag("speech.url", f.Lookup("stt-url"))
	v.BindPFlag("relay.port", f.Lookup("relay-port"))
	v.BindPFlag("responses", f.Lookup("responses"))
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, stdin bool) error {
	logger := log.Component("serve")

	st := store.Open(ctx, cfg.Store.Path)
	defer st.Close()

	library := announce.DefaultLibrary()
	if cfg.Responses != "" {
		n, err := library.LoadFile(cfg.Responses)
		if err != nil {
			return err
		}
		logger.Info("loaded gesture responses", "file", cfg.Responses, "count", n)
	}

	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}

	events := hub.New("events")
	opts := []engine.Option{
		engine.WithDispatcher(dispatcher),
		engine.WithPublisher(web.Publisher(events)),
		engine.WithStore(st),
		engine.WithLibrary(library),
		engine.WithVoiceInput(cfg.Speech.URL != "" || stdin),
	}

	var relay *hardware.Relay
	if cfg.Relay.Port != "" {
		relay, err = hardware.Open(cfg.RelayConfig())
		if err != nil {
			logger.Warn("relay board unavailable", "port", cfg.Relay.Port, "err", err)
		} else {
			defer relay.Close()
			opts = append(opts, engine.WithRelay(relay))
		}
	}

	eng := engine.New(cfg.EngineConfig(), opts...)
	srv := web.NewServer(web.Config{Port: cfg.Server.Port, StaticDir: cfg.Server.StaticDir}, eng, events)

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var listener transcript.Listener
	switch {
	case cfg.Speech.URL != "":
		listener = transcript.NewWSListener(cfg.SpeechConfig())
	case stdin:
		listener = transcript.NewReaderListener(os.Stdin)
	}
	var transcripts <-chan string
	if listener != nil {
		ch, err := listener.Listen(ctx)
		if err != nil {
			return err
		}
		transcripts = ch
	}

	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		return eng.Run(ctx, nil, transcripts)
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Serve(ctx, eng.DeviceOutput)
		})
	}

	err = g.Wait()
	// Stop runs after cancellation; give it a fresh context.
	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if stopErr := eng.Stop(shutdown); stopErr != nil {
		logger.Warn("failed to save preferences", "err", stopErr)
	}
	if closeErr := dispatcher.Close(shutdown); closeErr != nil {
		logger.Warn("output not drained before shutdown", "err", closeErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newDispatcher routes feedback to the device bridge when one is
// configured, and to the log otherwise. Every request is queued so a slow
// device never holds up the engine.
func newDispatcher(cfg config.Config) (*feedback.Dispatcher, error) {
	queue := feedback.NewQueue("output", feedback.DefaultQueueSize)
	if cfg.Bridge.URL == "" {
		return feedback.Async(feedback.NewDispatcher(feedback.LogSpeaker{}, nil, nil, nil, nil), queue), nil
	}

	b, err := bridge.New(
		bridge.WithBaseURL(cfg.Bridge.URL),
		bridge.WithTimeout(cfg.Bridge.Timeout),
		bridge.WithRetries(cfg.Bridge.MaxRetries, bridge.DefaultConfig().RetryDelay),
	)
	if err != nil {
		queue.Close(context.Background())
		return nil, err
	}
	return feedback.Async(feedback.NewDispatcher(b, b, b, b, b), queue), nil
}
