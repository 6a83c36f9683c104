package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"texswarm/document"
)

// Service owns the libp2p host, the gossipsub router, and the set of
// per-document topic subscriptions. It has no knowledge of the CRDT
// engine; it only emits NetworkEvent values for the dispatcher to act on.
type Service struct {
	host   host.Host
	pubsub *pubsub.PubSub
	log    *zap.SugaredLogger

	events chan NetworkEvent

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription
}

// Config controls how the overlay's libp2p host is constructed.
type Config struct {
	ListenAddrs []string
	PrivateKey  crypto.PrivKey // optional; a fresh identity is generated if nil
	EventBuffer int            // bounded event channel size; events are dropped-oldest when full
}

// New constructs a libp2p host and gossipsub router and starts serving the
// collaboration stream protocol. The returned Service's Events channel
// must be drained by a dispatcher.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Service, error) {
	opts := []libp2p.Option{libp2p.NATPortMap()}
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	}
	if cfg.PrivateKey != nil {
		opts = append(opts, libp2p.Identity(cfg.PrivateKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("overlay: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("overlay: create gossipsub: %w", err)
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}

	svc := &Service{
		host:   h,
		pubsub: ps,
		log:    log,
		events: make(chan NetworkEvent, buffer),
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
	}

	h.SetStreamHandler(ProtocolID, svc.handleStream)
	h.Network().Notify(svc.notifiee())

	return svc, nil
}

// Events returns the channel of events this service emits. The caller
// (dispatch.Dispatcher) must drain it.
func (s *Service) Events() <-chan NetworkEvent { return s.events }

// Host exposes the underlying libp2p host for address/connect operations.
func (s *Service) Host() host.Host { return s.host }

// emit pushes ev onto the event channel, dropping the oldest pending event
// if the channel is full rather than blocking the libp2p callback.
func (s *Service) emit(ev NetworkEvent) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
			s.log.Warnw("overlay: dropped event, channel saturated", "kind", ev.Kind)
		}
	}
}

// Connect dials addr and connects to the peer it describes.
func (s *Service) Connect(ctx context.Context, addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("overlay: parse multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("overlay: parse peer addr: %w", err)
	}
	if err := s.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("overlay: connect: %w", err)
	}
	return nil
}

// JoinDocument subscribes to the three topics for id, returning once all
// three joins succeed.
func (s *Service) JoinDocument(ctx context.Context, id document.ID) error {
	for _, name := range []string{OpsTopic(id), PresenceTopic(id), MetaTopic(id)} {
		if err := s.joinTopic(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// LeaveDocument unsubscribes from and closes all three topics for id. A
// document this service never joined is a no-op.
func (s *Service) LeaveDocument(id document.ID) error {
	for _, name := range []string{OpsTopic(id), PresenceTopic(id), MetaTopic(id)} {
		if err := s.leaveTopic(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) leaveTopic(name string) error {
	s.mu.Lock()
	sub, hasSub := s.subs[name]
	topic, hasTopic := s.topics[name]
	delete(s.subs, name)
	delete(s.topics, name)
	s.mu.Unlock()

	if hasSub {
		sub.Cancel()
	}
	if hasTopic {
		if err := topic.Close(); err != nil {
			return fmt.Errorf("overlay: close topic %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) joinTopic(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, ok := s.topics[name]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	topic, err := s.pubsub.Join(name)
	if err != nil {
		return fmt.Errorf("overlay: join topic %s: %w", name, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("overlay: subscribe topic %s: %w", name, err)
	}

	s.mu.Lock()
	s.topics[name] = topic
	s.subs[name] = sub
	s.mu.Unlock()

	go s.readLoop(ctx, name, sub)
	return nil
}

func (s *Service) readLoop(ctx context.Context, topic string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // ctx cancelled or subscription cancelled
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		var nm NetworkMessage
		if err := json.Unmarshal(msg.Data, &nm); err != nil {
			s.log.Warnw("overlay: dropped malformed gossip message", "topic", topic, "err", err)
			continue
		}
		s.emit(NewMessageEvent(msg.ReceivedFrom, topic, nm))
	}
}

// Publish broadcasts msg on the named topic.
func (s *Service) Publish(ctx context.Context, topicName string, msg NetworkMessage) error {
	s.mu.Lock()
	topic, ok := s.topics[topicName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("overlay: not joined to topic %s", topicName)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

// handleStream serves the direct request/response protocol: it reads one
// CollabRequest and emits a RequestReceived event carrying a reply channel
// bound to the stream.
func (s *Service) handleStream(stream network.Stream) {
	defer stream.Close()

	req, err := ReadRequest(stream)
	if err != nil {
		s.log.Warnw("overlay: bad request frame", "err", err)
		return
	}

	done := make(chan struct{})
	s.emit(NetworkEvent{
		Kind:      EventRequestReceived,
		Source:    stream.Conn().RemotePeer(),
		RequestID: fmt.Sprintf("%s-%d", stream.Conn().RemotePeer(), stream.ID()),
		Request:   req.Message,
		Reply:     &streamReplyChannel{stream: stream, done: done},
	})
	<-done
}

// streamReplyChannel implements RequestChannel by writing the response
// back onto the originating libp2p stream.
type streamReplyChannel struct {
	stream network.Stream
	done   chan struct{}
	once   sync.Once
}

func (c *streamReplyChannel) Respond(resp CollabResponse) error {
	var err error
	c.once.Do(func() {
		err = WriteResponse(c.stream, resp)
		close(c.done)
	})
	return err
}

// Request performs a direct request/response exchange against peerID over
// a freshly opened stream.
func (s *Service) Request(ctx context.Context, peerID peer.ID, req NetworkMessage) (NetworkMessage, error) {
	stream, err := s.host.NewStream(ctx, peerID, ProtocolID)
	if err != nil {
		return NetworkMessage{}, fmt.Errorf("overlay: open stream: %w", err)
	}
	defer stream.Close()

	if err := WriteRequest(stream, CollabRequest{Message: req}); err != nil {
		return NetworkMessage{}, fmt.Errorf("overlay: write request: %w", err)
	}
	resp, err := ReadResponse(stream)
	if err != nil {
		return NetworkMessage{}, fmt.Errorf("overlay: read response: %w", err)
	}
	return resp.Message, nil
}

// Close shuts down the host and all subscriptions.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.mu.Unlock()
	return s.host.Close()
}
