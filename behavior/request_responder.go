package behavior

import (
	"context"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/transport"
)

// RequestResponderHooks supplies the domain-specific behavior behind the
// fixed Request-protocol responder skeleton.
type RequestResponderHooks struct {
	// PrepareResponse decides AGREE, REFUSE, or FAILURE for an incoming
	// REQUEST. A nil response silently drops the request.
	PrepareResponse func(ctx context.Context, request *acl.Message) (*acl.Message, error)
	// PrepareResultNotification runs only after an AGREE response and
	// produces the INFORM/FAILURE that finalizes the exchange. Callers
	// that need an exclusive lock held across the AGREE-to-result window
	// must acquire it before PrepareResponse returns AGREE and release it
	// inside this hook.
	PrepareResultNotification func(ctx context.Context, request *acl.Message) (*acl.Message, error)
}

// RequestResponder answers an unbounded sequence of REQUESTs on its
// mailbox, one at a time.
type RequestResponder struct {
	Bus     transport.Bus
	Mailbox transport.Mailbox
	Hooks   RequestResponderHooks
	Logger  logging.Logger
}

// NewRequestResponder constructs a responder bound to mailbox.
func NewRequestResponder(bus transport.Bus, mailbox transport.Mailbox, hooks RequestResponderHooks, logger logging.Logger) *RequestResponder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RequestResponder{Bus: bus, Mailbox: mailbox, Hooks: hooks, Logger: logger}
}

// Run processes REQUESTs until ctx is cancelled or the mailbox errors.
func (r *RequestResponder) Run(ctx context.Context) error {
	for {
		request, err := r.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}

		response, err := r.Hooks.PrepareResponse(ctx, request)
		if err != nil {
			r.Logger.Warn("request_handling_failed", "error", err.Error())
			continue
		}
		if response == nil {
			continue
		}
		if err := r.Bus.Send(ctx, response); err != nil {
			return err
		}
		if response.Performative != acl.AGREE {
			continue
		}

		result, err := r.Hooks.PrepareResultNotification(ctx, request)
		if err != nil {
			r.Logger.Warn("result_notification_failed", "error", err.Error())
			continue
		}
		if err := r.Bus.Send(ctx, result); err != nil {
			return err
		}
	}
}
