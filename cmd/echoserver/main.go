package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "echoserver",
		Usage: "websocket echo peer for exercising the bridge locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "127.0.0.1:8091",
				Usage: "listen address",
			},
			&cli.StringFlag{
				Name:  "protocol",
				Value: "mcp-automation",
				Usage: "subprotocol to accept",
			},
			&cli.StringFlag{
				Name:    "capability-token",
				Usage:   "reject upgrades whose capability header does not match",
				Sources: cli.EnvVars("MCP_AUTOMATION_CAPABILITY_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "capability-header",
				Value: "X-MCP-Capability",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			srv := &http.Server{
				Addr:              cmd.String("addr"),
				Handler:           newEchoHandler(cmd.String("protocol"), cmd.String("capability-header"), cmd.String("capability-token")),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			logs.Infof("echo server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "listen")
			}
			return nil
		},
	}
	if err := cmd.Run(ctx, os.Args); err != nil {
		logs.Errorf("echo server exited, err: %+v", err)
		os.Exit(1)
	}
}

func newEchoHandler(protocol, header, token string) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	if protocol != "" {
		upgrader.Subprotocols = []string{protocol}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get(header) != token {
			http.Error(w, "capability token rejected", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logs.Errorf("upgrade, err: %+v", err)
			return
		}
		defer conn.Close()
		logs.Infof("peer connected from %s (protocol %q)", r.RemoteAddr, conn.Subprotocol())
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logs.Errorf("read, err: %+v", err)
				}
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				logs.Errorf("write, err: %+v", err)
				return
			}
		}
	})
}
