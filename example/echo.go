package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/peersock"
)

// serve echoes every data message back to its sender.
// Only this goroutine touches the socket's shared state.
func serve(sock *peersock.Socket) error {
	for {
		ev, err := sock.Receive()
		if err != nil {
			return err
		}

		switch ev.Kind {
		case peersock.EventConnection:
			slog.Info("peer connected", "addr", ev.Addr)
		case peersock.EventDisconnection:
			slog.Info("peer disconnected", "addr", ev.Addr)
		case peersock.EventMessage:
			sender, err := sock.Sender(ev.Addr)
			if err != nil {
				return err
			}
			if err := sender.Send(ev.Payload); err != nil {
				slog.Error("echo failed", "addr", ev.Addr, "error", err)
			}
			sender.Close()
		}
	}
}

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "UDP listen address")
	configPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	cfg := peersock.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = peersock.LoadConfig(*configPath); err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	sock, err := peersock.Listen(*addr, peersock.ConfigOption(cfg))
	if err != nil {
		slog.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return sock.Close()
	})
	group.Go(func() error {
		return serve(sock)
	})

	slog.Info("echo server started", "addr", sock.Addr())
	if err := group.Wait(); err != nil && !errors.Is(err, peersock.ErrSocketClosed) {
		slog.Error("server error", "error", err)
	}
}
