package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"texswarm/config"
	"texswarm/core"
)

func main() {
	var (
		listenAddr = flag.String("listen", "/ip4/0.0.0.0/tcp/0", "libp2p listen multiaddr")
		baseDir    = flag.String("data", "./documents", "directory for per-document git repositories")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddrs = []string{*listenAddr}
	cfg.Git.BaseDir = *baseDir

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := core.New(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to start node", "err", err)
	}
	defer node.Close()

	sugar.Infow("node started", "peer_id", node.Overlay.Host().ID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		sugar.Info("shutting down")
		cancel()
	}()

	node.Run(ctx)
}
