// Package core wires the CRDT engine, overlay networking, dispatcher, and
// git persistence into a single running node.
package core

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"

	"texswarm/config"
	"texswarm/crdt"
	"texswarm/dispatch"
	"texswarm/document"
	"texswarm/ensure"
	"texswarm/gitrepo"
	"texswarm/overlay"
	"texswarm/peer"
	"texswarm/sync"
)

func init() {
	// Quiet noisy libp2p subsystems so application logs stay legible.
	_ = logging.SetLogLevel("swarm2", "error")
	_ = logging.SetLogLevel("autorelay", "error")
	_ = logging.SetLogLevel("autonat", "error")
}

// Core is one running collaboration node: engine + overlay + dispatch +
// persistence, all wired together.
type Core struct {
	Engine     *crdt.Engine
	Ensurer    *ensure.Ensurer
	Peers      *peer.Registry
	Overlay    *overlay.Service
	Dispatcher *dispatch.Dispatcher
	Git        *gitrepo.Manager
	Sync       *sync.Synchronizer

	log *zap.SugaredLogger
}

// New constructs a Core from cfg and starts mDNS and DHT peer discovery as
// cfg enables them. It does not start the dispatcher or the periodic sync
// loop; call Run to do that.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Core, error) {
	engine := crdt.NewEngine()
	ensurer := ensure.New(engine)
	registry := peer.NewRegistry(cfg.Network.PeerTimeout)

	svc, err := overlay.New(ctx, overlay.Config{
		ListenAddrs: cfg.Server.ListenAddrs,
		EventBuffer: cfg.Network.EventBuffer,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("core: overlay: %w", err)
	}

	gitMgr := gitrepo.New(cfg.Git.BaseDir, gitrepo.Signature{
		Name:  cfg.Git.AuthorName,
		Email: cfg.Git.AuthorEmail,
	}, authFromConfig(cfg.Git))

	synchronizer := sync.New(engine, registry, gitMgr, cfg.Git.SyncInterval, cfg.Git.DefaultBranch, log)

	d := dispatch.New(engine, ensurer, registry, svc, log)

	c := &Core{
		Engine:     engine,
		Ensurer:    ensurer,
		Peers:      registry,
		Overlay:    svc,
		Dispatcher: d,
		Git:        gitMgr,
		Sync:       synchronizer,
		log:        log,
	}

	// Every remote mutation keeps the document tracked for its next
	// periodic save; the save itself happens out-of-band on the
	// synchronizer's own tick, never synchronously under an engine lock.
	d.OnDocumentMutated = func(id document.ID) {
		synchronizer.Track(id)
	}

	if cfg.Network.EnableMDNS {
		if err := svc.StartMDNS(); err != nil {
			log.Warnw("core: mdns discovery failed to start", "err", err)
		}
	}

	if cfg.Network.EnableKadDHT {
		bootstrap, err := overlay.ParseBootstrapAddrs(cfg.Network.BootstrapPeers)
		if err != nil {
			log.Warnw("core: malformed bootstrap addresses, skipping dht bootstrap", "err", err)
		} else if _, err := svc.StartDHT(ctx, bootstrap); err != nil {
			log.Warnw("core: kademlia dht failed to start", "err", err)
		}
	}

	return c, nil
}

func authFromConfig(g config.GitConfig) *gitrepo.Auth {
	if g.RemoteUsername == "" && g.RemoteToken == "" {
		return nil
	}
	return &gitrepo.Auth{Username: g.RemoteUsername, Password: g.RemoteToken}
}

// Run starts the dispatcher and the periodic sync loop, blocking until ctx
// is cancelled.
func (c *Core) Run(ctx context.Context) {
	go c.Dispatcher.Run(ctx)
	go c.Sync.Run(ctx)
	<-ctx.Done()
}

// Close tears down the overlay host.
func (c *Core) Close() error {
	return c.Overlay.Close()
}
