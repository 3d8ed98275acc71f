// Package behavior implements the two interaction protocols every agent in
// the yard is built from: Contract-Net (auction-based slot allocation) and
// Request (deallocation and reallocation). Each protocol has an Initiator
// and a Responder side; both are driven by blocking receives on a
// transport.Mailbox rather than by polling, which is the idiomatic Go
// rendition of the originating cyclic-behaviour state machines.
package behavior

import (
	"context"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/transport"
)

// ContractNetInitiatorPhase names the stage of a single Contract-Net round,
// used only for logging and tests; control flow in Run does not branch on
// it explicitly.
type ContractNetInitiatorPhase int

const (
	PhasePrepareCFPs ContractNetInitiatorPhase = iota
	PhaseAwaitResponses
	PhaseAllResponsesIn
	PhaseAwaitResults
	PhaseAllResultsIn
	PhaseFinalized
)

// ContractNetInitiatorHooks supplies the domain-specific behavior around
// the fixed Contract-Net skeleton.
type ContractNetInitiatorHooks struct {
	// PrepareCFPs builds one CFP message per prospective responder.
	PrepareCFPs func(ctx context.Context) ([]*acl.Message, error)
	// HandleResponse is called once per incoming message, both responses and
	// result notifications, before it is added to its batch. Optional.
	HandleResponse func(response *acl.Message)
	// HandleAllResponses partitions every response into the proposals to
	// accept and those to reject.
	HandleAllResponses func(responses []*acl.Message) (acceptances, rejections []*acl.Message)
	// HandleAllResultNotifications runs once every accepted proposal has
	// produced a result notification. Optional.
	HandleAllResultNotifications func(notifications []*acl.Message)
}

// ContractNetInitiator runs one Contract-Net auction to completion: fan out
// CFPs, collect every response, accept the winners and reject the rest,
// then wait for a result notification from each winner.
type ContractNetInitiator struct {
	Bus     transport.Bus
	Mailbox transport.Mailbox
	Hooks   ContractNetInitiatorHooks
	Logger  logging.Logger

	phase ContractNetInitiatorPhase
}

// NewContractNetInitiator constructs an initiator bound to mailbox for its
// own replies.
func NewContractNetInitiator(bus transport.Bus, mailbox transport.Mailbox, hooks ContractNetInitiatorHooks, logger logging.Logger) *ContractNetInitiator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ContractNetInitiator{Bus: bus, Mailbox: mailbox, Hooks: hooks, Logger: logger}
}

// Phase returns the current stage, useful for tests and diagnostics.
func (c *ContractNetInitiator) Phase() ContractNetInitiatorPhase { return c.phase }

// Run drives one full auction round to Finalized, or returns the first
// transport error encountered.
func (c *ContractNetInitiator) Run(ctx context.Context) error {
	c.phase = PhasePrepareCFPs
	cfps, err := c.Hooks.PrepareCFPs(ctx)
	if err != nil {
		return err
	}

	c.phase = PhaseAwaitResponses
	for _, cfp := range cfps {
		if err := c.Bus.Send(ctx, cfp); err != nil {
			return err
		}
	}

	responses := make([]*acl.Message, 0, len(cfps))
	for len(responses) < len(cfps) {
		response, err := c.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}
		if c.Hooks.HandleResponse != nil {
			c.Hooks.HandleResponse(response)
		}
		responses = append(responses, response)
	}

	c.phase = PhaseAllResponsesIn
	acceptances, rejections := c.Hooks.HandleAllResponses(responses)

	c.phase = PhaseAwaitResults
	for _, msg := range acceptances {
		if err := c.Bus.Send(ctx, msg); err != nil {
			return err
		}
	}
	for _, msg := range rejections {
		if err := c.Bus.Send(ctx, msg); err != nil {
			return err
		}
	}

	notifications := make([]*acl.Message, 0, len(acceptances))
	for len(notifications) < len(acceptances) {
		notification, err := c.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}
		if c.Hooks.HandleResponse != nil {
			c.Hooks.HandleResponse(notification)
		}
		notifications = append(notifications, notification)
	}

	c.phase = PhaseAllResultsIn
	if c.Hooks.HandleAllResultNotifications != nil {
		c.Hooks.HandleAllResultNotifications(notifications)
	}
	c.phase = PhaseFinalized
	return nil
}
