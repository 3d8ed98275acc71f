package behavior

import (
	"context"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/transport"
)

// ContractNetResponderHooks supplies the domain-specific behavior behind
// the fixed Contract-Net responder skeleton.
type ContractNetResponderHooks struct {
	// HandleCFP decides the reply to a CFP: REFUSE or PROPOSE.
	HandleCFP func(ctx context.Context, cfp *acl.Message) (*acl.Message, error)
	// HandleAcceptProposal produces the result notification (INFORM or
	// FAILURE) once a proposal has been accepted.
	HandleAcceptProposal func(ctx context.Context, accept *acl.Message) (*acl.Message, error)
	// HandleRejectProposal runs when the initiator rejects a proposal.
	HandleRejectProposal func(ctx context.Context, reject *acl.Message)
}

// ContractNetResponder answers an unbounded sequence of CFPs on its
// mailbox, one auction round at a time.
type ContractNetResponder struct {
	Bus     transport.Bus
	Mailbox transport.Mailbox
	Hooks   ContractNetResponderHooks
	Logger  logging.Logger
}

// NewContractNetResponder constructs a responder bound to mailbox.
func NewContractNetResponder(bus transport.Bus, mailbox transport.Mailbox, hooks ContractNetResponderHooks, logger logging.Logger) *ContractNetResponder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ContractNetResponder{Bus: bus, Mailbox: mailbox, Hooks: hooks, Logger: logger}
}

// Run processes CFPs until ctx is cancelled or the mailbox errors.
func (r *ContractNetResponder) Run(ctx context.Context) error {
	for {
		cfp, err := r.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}

		response, err := r.Hooks.HandleCFP(ctx, cfp)
		if err != nil {
			r.Logger.Warn("cfp_handling_failed", "error", err.Error())
			continue
		}
		if err := r.Bus.Send(ctx, response); err != nil {
			return err
		}
		if response.Performative != acl.PROPOSE {
			continue
		}

		proposalResponse, err := r.Mailbox.Receive(ctx)
		if err != nil {
			return err
		}

		switch proposalResponse.Performative {
		case acl.ACCEPT_PROPOSAL:
			result, err := r.Hooks.HandleAcceptProposal(ctx, proposalResponse)
			if err != nil {
				r.Logger.Warn("accept_proposal_handling_failed", "error", err.Error())
				continue
			}
			if err := r.Bus.Send(ctx, result); err != nil {
				return err
			}
		case acl.REJECT_PROPOSAL:
			if r.Hooks.HandleRejectProposal != nil {
				r.Hooks.HandleRejectProposal(ctx, proposalResponse)
			}
		}
	}
}
