package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChiR24/Unreal-mcp-sub002/internal/bridge"
	"github.com/ChiR24/Unreal-mcp-sub002/internal/config"
	"github.com/ChiR24/Unreal-mcp-sub002/internal/dispatch"
	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logs.Errorf("load .env, err: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command().Run(ctx, os.Args); err != nil {
		logs.Errorf("bridge exited, err: %+v", err)
		os.Exit(1)
	}
}

func command() *cli.Command {
	return &cli.Command{
		Name:  "bridge",
		Usage: "connect to an automation endpoint and serve its requests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("MCP_BRIDGE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "websocket endpoint (ws:// or wss://)",
				Sources: cli.EnvVars("MCP_AUTOMATION_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "capability-token",
				Usage:   "token sent in the capability header",
				Sources: cli.EnvVars("MCP_AUTOMATION_CAPABILITY_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "reconnect-delay",
				Usage:   "delay between reconnect attempts (<=0 disables)",
				Sources: cli.EnvVars("MCP_AUTOMATION_RECONNECT_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "host tick interval",
				Sources: cli.EnvVars("MCP_AUTOMATION_TICK_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "pyroscope-addr",
				Usage:   "pyroscope server address, empty disables profiling",
				Sources: cli.EnvVars("PYROSCOPE_SERVER_ADDRESS"),
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr := cmd.String("pyroscope-addr"); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "mcp/bridge",
			ServerAddress:   addr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	coord := bridge.New(cfg)
	d := dispatch.New(coord)
	if err := registerActions(d, coord); err != nil {
		return err
	}

	coord.OnMessage(func(req bridge.Request) {
		if err := d.Dispatch(ctx, req.Payload); err != nil {
			logs.Errorf("dispatch message %s, err: %+v", req.ID, err)
		}
	})
	coord.OnStateChange(func(s bridge.State) {
		logs.Infof("bridge state: %s", s)
	})

	if err := coord.StartBridge(ctx); err != nil {
		return err
	}
	defer coord.StopBridge()

	select {
	case <-sys.Shutdown():
	case <-ctx.Done():
	}
	logs.Info("shutting down")
	return nil
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if cmd.IsSet("endpoint") {
		cfg.Endpoint = cmd.String("endpoint")
	}
	if cmd.IsSet("capability-token") {
		cfg.CapabilityToken = cmd.String("capability-token")
	}
	if cmd.IsSet("reconnect-delay") {
		cfg.ReconnectDelay = cmd.Duration("reconnect-delay")
	}
	if cmd.IsSet("tick-interval") {
		cfg.TickInterval = cmd.Duration("tick-interval")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func registerActions(d *dispatch.Dispatcher, coord *bridge.Coordinator) error {
	if err := d.HandleAction("echo", func(_ context.Context, req dispatch.Request) (any, error) {
		return req.Params, nil
	}); err != nil {
		return err
	}
	return d.HandleAction("bridge.status", func(_ context.Context, _ dispatch.Request) (any, error) {
		snap := coord.Metrics().Snapshot()
		return map[string]any{
			"state":    coord.State().String(),
			"pending":  coord.Pending(),
			"counters": snap.Counters,
			"actions":  d.Actions(),
		}, nil
	})
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
