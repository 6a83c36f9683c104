package overlay

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// ParseBootstrapAddrs resolves a list of p2p multiaddr strings (network.
// bootstrap_nodes in configuration) into AddrInfo values suitable for
// StartDHT.
func ParseBootstrapAddrs(addrs []string) ([]peer.AddrInfo, error) {
	infos := make([]peer.AddrInfo, 0, len(addrs))
	for _, a := range addrs {
		maddr, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("overlay: parse bootstrap addr %q: %w", a, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return nil, fmt.Errorf("overlay: bootstrap addr %q: %w", a, err)
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

const mdnsServiceTag = "p2p-latex-collab"

// notifiee returns a network.Notifiee translating libp2p connect/disconnect
// callbacks into PeerConnected/PeerDisconnected events.
func (s *Service) notifiee() network.Notifiee {
	return &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			s.emit(NetworkEvent{Kind: EventPeerConnected, Peer: c.RemotePeer()})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			s.emit(NetworkEvent{Kind: EventPeerDisconnected, Peer: c.RemotePeer()})
		},
	}
}

// mdnsNotifee bridges mDNS discovery callbacks into the service's event
// stream and dials newly found peers.
type mdnsNotifee struct {
	svc *Service
	log *zap.SugaredLogger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	n.svc.emit(NetworkEvent{Kind: EventPeerDiscovered, Peer: info.ID})
	if err := n.svc.host.Connect(context.Background(), info); err != nil {
		n.log.Debugw("overlay: mdns peer connect failed", "peer", info.ID, "err", err)
	}
}

// StartMDNS begins local-link peer discovery via multicast DNS.
func (s *Service) StartMDNS() error {
	svc := mdns.NewMdnsService(s.host, mdnsServiceTag, &mdnsNotifee{svc: s, log: s.log})
	return svc.Start()
}

// StartDHT bootstraps a Kademlia DHT for long-lived, non-local-link peer
// discovery, then dials the given bootstrap peers.
func (s *Service) StartDHT(ctx context.Context, bootstrapPeers []peer.AddrInfo) (*kaddht.IpfsDHT, error) {
	dht, err := kaddht.New(ctx, s.host, kaddht.Mode(kaddht.ModeAutoServer))
	if err != nil {
		return nil, err
	}
	if err := dht.Bootstrap(ctx); err != nil {
		return nil, err
	}
	for _, pi := range bootstrapPeers {
		if err := s.host.Connect(ctx, pi); err != nil {
			s.log.Debugw("overlay: dht bootstrap peer connect failed", "peer", pi.ID, "err", err)
			continue
		}
		s.emit(NetworkEvent{Kind: EventPeerDiscovered, Peer: pi.ID})
	}
	return dht, nil
}
