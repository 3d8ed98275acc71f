// Package transport provides the directed, in-memory message bus that
// carries ACL envelopes between named endpoints: each registered endpoint
// gets its own ordered mailbox, and Send enqueues a message onto the
// recipient's mailbox without any broadcast or type-based routing.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/portstack/yardctl/acl"
)

// Logger is the structured logging seam for the bus, mirroring the
// dependency-injected logger used elsewhere in this module.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type defaultLogger struct{}

func (defaultLogger) Debug(msg string, kv ...any) { log.Printf("[DEBUG] %s %v", msg, kv) }
func (defaultLogger) Info(msg string, kv ...any)  { log.Printf("[INFO] %s %v", msg, kv) }
func (defaultLogger) Warn(msg string, kv ...any)  { log.Printf("[WARN] %s %v", msg, kv) }
func (defaultLogger) Error(msg string, kv ...any) { log.Printf("[ERROR] %s %v", msg, kv) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

// ErrAlreadyRegistered is returned by Register when the endpoint already has
// a mailbox.
type ErrAlreadyRegistered struct{ Endpoint acl.Endpoint }

func (e ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("transport: endpoint %s already registered", e.Endpoint)
}

// ErrNoSuchEndpoint is the cause wrapped into an acl.TransportError when Send
// targets an endpoint with no mailbox.
type ErrNoSuchEndpoint struct{ Endpoint acl.Endpoint }

func (e ErrNoSuchEndpoint) Error() string {
	return fmt.Sprintf("transport: no such endpoint %s", e.Endpoint)
}

// Mailbox is a registered endpoint's inbound message queue.
type Mailbox interface {
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (*acl.Message, error)
	// Endpoint returns the mailbox owner's address.
	Endpoint() acl.Endpoint
}

type inboxMailbox struct {
	endpoint acl.Endpoint
	ch       chan *acl.Message
}

func (m *inboxMailbox) Endpoint() acl.Endpoint { return m.endpoint }

func (m *inboxMailbox) Receive(ctx context.Context) (*acl.Message, error) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return nil, fmt.Errorf("transport: mailbox for %s closed", m.endpoint)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bus directs messages between named endpoints with per-recipient ordered
// delivery.
type Bus interface {
	Register(endpoint acl.Endpoint) (Mailbox, error)
	Unregister(endpoint acl.Endpoint)
	Send(ctx context.Context, msg *acl.Message) error
}

// InMemoryBus is a thread-safe, single-process implementation of Bus. Each
// endpoint's mailbox is a buffered channel; messages to the same recipient
// are delivered in the order Send was called, matching the FIFO-per-pair
// guarantee agents are written against.
type InMemoryBus struct {
	mu       sync.RWMutex
	inboxes  map[acl.Endpoint]chan *acl.Message
	capacity int
	logger   Logger
}

// NewInMemoryBus creates a bus whose mailboxes buffer up to capacity
// messages before Send blocks.
func NewInMemoryBus(capacity int) *InMemoryBus {
	return NewInMemoryBusWithLogger(capacity, defaultLogger{})
}

// NewInMemoryBusWithLogger creates a bus with an injected logger.
func NewInMemoryBusWithLogger(capacity int, logger Logger) *InMemoryBus {
	if logger == nil {
		logger = defaultLogger{}
	}
	return &InMemoryBus{
		inboxes:  make(map[acl.Endpoint]chan *acl.Message),
		capacity: capacity,
		logger:   logger,
	}
}

// Register creates a mailbox for endpoint. Registering the same endpoint
// twice without an intervening Unregister is an error.
func (b *InMemoryBus) Register(endpoint acl.Endpoint) (Mailbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.inboxes[endpoint]; exists {
		return nil, ErrAlreadyRegistered{Endpoint: endpoint}
	}

	ch := make(chan *acl.Message, b.capacity)
	b.inboxes[endpoint] = ch
	b.logger.Debug("endpoint_registered", "endpoint", endpoint)
	return &inboxMailbox{endpoint: endpoint, ch: ch}, nil
}

// Unregister closes and removes endpoint's mailbox. Safe to call on an
// endpoint that is not registered.
func (b *InMemoryBus) Unregister(endpoint acl.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.inboxes[endpoint]
	if !exists {
		return
	}
	delete(b.inboxes, endpoint)
	close(ch)
	b.logger.Debug("endpoint_unregistered", "endpoint", endpoint)
}

// Send enqueues msg onto its recipient's mailbox. It returns an
// *acl.TransportError if the recipient has no mailbox or ctx expires before
// the message is accepted.
func (b *InMemoryBus) Send(ctx context.Context, msg *acl.Message) error {
	b.mu.RLock()
	ch, exists := b.inboxes[msg.Recipient]
	b.mu.RUnlock()

	if !exists {
		return &acl.TransportError{Recipient: msg.Recipient, Cause: ErrNoSuchEndpoint{Endpoint: msg.Recipient}}
	}

	select {
	case ch <- msg:
		b.logger.Debug("message_sent", "from", msg.Sender, "to", msg.Recipient, "performative", msg.Performative.String())
		return nil
	case <-ctx.Done():
		return &acl.TransportError{Recipient: msg.Recipient, Cause: ctx.Err()}
	}
}
