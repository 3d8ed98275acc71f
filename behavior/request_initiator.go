package behavior

import (
	"context"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/transport"
)

// RequestInitiatorPhase names the stage of a Request round for logging and
// tests.
type RequestInitiatorPhase int

const (
	RequestInitialised RequestInitiatorPhase = iota
	RequestAwaitResponses
	RequestAllResultsIn
	RequestFinalized
)

// RequestInitiatorHooks supplies the domain-specific behavior around the
// fixed Request-protocol initiator skeleton.
type RequestInitiatorHooks struct {
	// PrepareRequests builds the outgoing REQUEST messages.
	PrepareRequests func(ctx context.Context) ([]*acl.Message, error)
	// HandleAllResponses runs once every REQUEST has drawn an
	// AGREE/REFUSE/NOT_UNDERSTOOD response.
	HandleAllResponses func(responses []*acl.Message)
	// HandleAllResultNotifications runs once every AGREE has drawn its
	// INFORM/FAILURE result notification.
	HandleAllResultNotifications func(notifications []*acl.Message)
}

// RequestInitiator sends one REQUEST per target, waits for the
// AGREE/REFUSE/NOT_UNDERSTOOD handshake, then waits for a result
// notification from every agreeing responder.
//
// A REFUSE or NOT_UNDERSTOOD response retires its request immediately: no
// result notification is expected for it. This corrects the upstream
// accounting bug where a result notification's arrival never advanced the
// completion count — here the notification count is simply the length of
// the slice it is appended to, so it cannot drift from the number of
// notifications actually received.
type RequestInitiator struct {
	Bus     transport.Bus
	Mailbox transport.Mailbox
	Hooks   RequestInitiatorHooks
	Logger  logging.Logger

	phase RequestInitiatorPhase
}

// NewRequestInitiator constructs an initiator bound to mailbox.
func NewRequestInitiator(bus transport.Bus, mailbox transport.Mailbox, hooks RequestInitiatorHooks, logger logging.Logger) *RequestInitiator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RequestInitiator{Bus: bus, Mailbox: mailbox, Hooks: hooks, Logger: logger}
}

// Phase returns the current stage.
func (r *RequestInitiator) Phase() RequestInitiatorPhase { return r.phase }

// Run drives one full request round to RequestFinalized.
func (r *RequestInitiator) Run(ctx context.Context) error {
	r.phase = RequestInitialised
	requests, err := r.Hooks.PrepareRequests(ctx)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if err := r.Bus.Send(ctx, req); err != nil {
			return err
		}
	}

	r.phase = RequestAwaitResponses
	expectedNotifications := len(requests)
	responses := make([]*acl.Message, 0, len(requests))
	notifications := make([]*acl.Message, 0, len(requests))

	for len(responses) < len(requests) || len(notifications) < expectedNotifications {
		msg, err := r.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}

		switch msg.Performative {
		case acl.INFORM, acl.FAILURE:
			notifications = append(notifications, msg)
		case acl.AGREE, acl.NOT_UNDERSTOOD, acl.REFUSE:
			responses = append(responses, msg)
			if msg.Performative != acl.AGREE {
				expectedNotifications--
			}
			if len(responses) >= len(requests) && r.Hooks.HandleAllResponses != nil {
				r.Hooks.HandleAllResponses(responses)
			}
		}
	}

	r.phase = RequestAllResultsIn
	if r.Hooks.HandleAllResultNotifications != nil {
		r.Hooks.HandleAllResultNotifications(notifications)
	}
	r.phase = RequestFinalized
	return nil
}
