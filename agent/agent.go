// Package agent provides the Base every yard actor (directory facilitator,
// slot, container, port manager, truck) is built on: mailbox registration on
// the transport bus, a logger bound to the agent's JID, and tracing around
// every send/receive.
package agent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/transport"
)

var tracer = otel.Tracer("yardctl/agent")

// Base is embedded by every concrete agent type. It owns the agent's mailbox
// and wraps Send/Receive with tracing and transport metrics, the way the
// teacher's Agent.Process wraps a pipeline stage with a span.
type Base struct {
	JID     acl.Endpoint
	Bus     transport.Bus
	Mailbox transport.Mailbox
	Logger  logging.Logger
}

// NewBase registers jid on bus and returns a Base ready for a concrete
// agent to embed.
func NewBase(bus transport.Bus, jid acl.Endpoint, logger logging.Logger) (*Base, error) {
	mb, err := bus.Register(jid)
	if err != nil {
		return nil, fmt.Errorf("registering agent %s: %w", jid, err)
	}
	return &Base{
		JID:     jid,
		Bus:     bus,
		Mailbox: mb,
		Logger:  logger.Bind("jid", string(jid)),
	}, nil
}

// Close unregisters the agent's mailbox. Safe to call once per agent.
func (b *Base) Close() {
	b.Bus.Unregister(b.JID)
}

// Send wraps Bus.Send with a span and the outgoing message-transport
// metrics.
func (b *Base) Send(ctx context.Context, msg *acl.Message) error {
	ctx, span := tracer.Start(ctx, "agent.send",
		attribute.String("yard.jid", string(b.JID)),
		attribute.String("yard.recipient", string(msg.Recipient)),
		attribute.String("yard.performative", msg.Performative.String()),
	)
	defer span.End()

	err := b.Bus.Send(ctx, msg)
	observability.RecordMessageSent(msg.Performative.String())
	if err != nil {
		observability.RecordTransportError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.Logger.Warn("send_failed", "recipient", string(msg.Recipient), "error", err.Error())
		return err
	}
	return nil
}

// Receive wraps Mailbox.Receive with a span.
func (b *Base) Receive(ctx context.Context) (*acl.Message, error) {
	ctx, span := tracer.Start(ctx, "agent.receive", attribute.String("yard.jid", string(b.JID)))
	defer span.End()

	msg, err := b.Mailbox.Receive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("yard.sender", string(msg.Sender)),
		attribute.String("yard.performative", msg.Performative.String()),
	)
	return msg, nil
}
