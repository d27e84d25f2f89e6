package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/trackfinder/internal/monitoring"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

// ErrClosed is returned by Export after Close.
var ErrClosed = errors.New("publisher closed")

// clientBuffer is the number of results queued per client before results
// are dropped for that client.
const clientBuffer = 64

// Publisher fans exported results out to every connected stream. It
// implements pipeline.Exporter.
type Publisher struct {
	mu      sync.Mutex
	history []*structpb.Struct
	clients map[int]chan *structpb.Struct
	nextID  int
	closed  bool

	dropped atomic.Uint64
}

var _ pipeline.Exporter = (*Publisher)(nil)

// NewPublisher returns an open publisher with no clients.
func NewPublisher() *Publisher {
	return &Publisher{clients: make(map[int]chan *structpb.Struct)}
}

// Export publishes r to every connected client and keeps it for clients
// that connect later. A client whose queue is full misses r.
func (p *Publisher) Export(ctx context.Context, r pipeline.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := toStruct(r)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.history = append(p.history, msg)
	for id, ch := range p.clients {
		select {
		case ch <- msg:
		default:
			dropped := p.dropped.Add(1)
			monitoring.Logf("[stream] client %d is slow, dropped event %d (total dropped: %d)", id, r.EventID, dropped)
		}
	}
	return nil
}

// StreamResults serves one client: the published backlog first, then live
// results until the client goes away or the publisher is closed.
func (p *Publisher) StreamResults(_ *emptypb.Empty, stream grpc.ServerStream) error {
	backlog, id, ch := p.subscribe()
	if ch != nil {
		defer p.unsubscribe(id)
	}
	monitoring.Logf("[stream] client %d connected, replaying %d results", id, len(backlog))

	for _, msg := range backlog {
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	if ch == nil {
		return nil
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[stream] client %d disconnected", id)
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// subscribe snapshots the backlog and registers a live queue under one lock
// so no result is missed or sent twice. The queue is nil once closed.
func (p *Publisher) subscribe() ([]*structpb.Struct, int, chan *structpb.Struct) {
	p.mu.Lock()
	defer p.mu.Unlock()
	backlog := append([]*structpb.Struct(nil), p.history...)
	id := p.nextID
	p.nextID++
	if p.closed {
		return backlog, id, nil
	}
	ch := make(chan *structpb.Struct, clientBuffer)
	p.clients[id] = ch
	return backlog, id, ch
}

func (p *Publisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, id)
}

// Close stops accepting results. Connected streams end after draining
// their queues.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.clients {
		close(ch)
		delete(p.clients, id)
	}
}

// Stats is a snapshot of the publisher counters.
type Stats struct {
	Published int
	Clients   int
	Dropped   uint64
}

// Stats returns the current counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Published: len(p.history),
		Clients:   len(p.clients),
		Dropped:   p.dropped.Load(),
	}
}
