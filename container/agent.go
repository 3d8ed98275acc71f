// Package container implements the container agent: discovers slot
// managers through the directory facilitator, runs the Contract-Net
// allocation auction for a berth, then waits for whichever comes first of
// its own departure timer or an external deallocation-request, and departs
// through the self-deallocation initiator either way. A reallocation-request
// from its current slot manager is served inline as a responder, re-running
// the allocation initiator over every other known slot.
package container

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/agent"
	"github.com/portstack/yardctl/behavior"
	"github.com/portstack/yardctl/concurrency"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/ontology"
	"github.com/portstack/yardctl/transport"
)

// Agent is one container's lifecycle actor.
//
// A single background goroutine (pump) classifies every inbound message by
// performative and routes it onto one of two channels: REQUEST messages
// (reallocation-request, deallocation-request) are requests this agent must
// answer, everything else is a reply correlated to something this agent
// sent. Run's own loop only ever reads from those two channels plus the
// departure timer, so exactly one goroutine ever touches agent state.
type Agent struct {
	base           *agent.Base
	contentManager *ontology.ContentManager
	lock           *concurrency.ExclusiveLock
	dfJID          acl.Endpoint

	ContainerID   string
	departureTime time.Time

	known          []acl.Endpoint
	currentSlotID  string
	currentSlotJID acl.Endpoint

	replyCh       chan *acl.Message
	unsolicitedCh chan *acl.Message
	departCh      chan struct{}
	timer         *concurrency.OneShotTimer
}

// New creates a container agent, registers it on bus, and queries the
// directory facilitator for every known slot manager.
func New(ctx context.Context, bus transport.Bus, jid acl.Endpoint, containerID string, departureTime time.Time, dfJID acl.Endpoint, logger logging.Logger) (*Agent, error) {
	base, err := agent.NewBase(bus, jid, logger.Bind("container_id", containerID))
	if err != nil {
		return nil, err
	}

	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)
	cm.Register(ontology.DF)

	a := &Agent{
		base:           base,
		contentManager: cm,
		lock:           concurrency.NewExclusiveLock(),
		dfJID:          dfJID,
		ContainerID:    containerID,
		departureTime:  departureTime,
		replyCh:        make(chan *acl.Message, 32),
		unsolicitedCh:  make(chan *acl.Message, 8),
		departCh:       make(chan struct{}, 1),
	}

	if err := a.discoverSlots(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// discoverSlots runs before the pump goroutine starts, so it can use the
// base mailbox directly without racing the dispatch loop.
func (a *Agent) discoverSlots(ctx context.Context) error {
	req := acl.New(a.base.JID, a.dfJID, acl.REQUEST)
	template := ontology.DFAgentDescription{Service: ontology.ServiceDescription{Properties: map[string]string{}}}
	if err := a.contentManager.Fill(ontology.DF.Name(), req, ontology.SearchServiceRequest{Request: template}); err != nil {
		return err
	}
	if err := a.base.Send(ctx, req); err != nil {
		return err
	}

	reply, err := a.base.Receive(ctx)
	if err != nil {
		return err
	}
	element, err := a.contentManager.Extract(reply)
	if err != nil {
		return err
	}
	resp, ok := element.(ontology.SearchServiceResponse)
	if !ok {
		return fmt.Errorf("container %s: unexpected df response to slot discovery", a.ContainerID)
	}

	endpoints := make([]acl.Endpoint, 0, len(resp.List))
	for _, desc := range resp.List {
		endpoints = append(endpoints, acl.Endpoint(desc.AgentName))
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })
	a.known = endpoints
	return nil
}

// pump is the only goroutine allowed to call base.Receive. It classifies
// every message by performative: a container only ever receives REQUEST as
// an unsolicited trigger (reallocation-request, deallocation-request);
// every other performative is a reply to something this agent sent.
func (a *Agent) pump(ctx context.Context) {
	for {
		msg, err := a.base.Receive(ctx)
		if err != nil {
			return
		}
		var dest chan *acl.Message
		if msg.Performative == acl.REQUEST {
			dest = a.unsolicitedCh
		} else {
			dest = a.replyCh
		}
		select {
		case dest <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// chanMailbox adapts a channel fed by pump into the transport.Mailbox shape
// the behavior-package initiators expect, so Contract-Net and Request
// initiator rounds can run without contending with pump for the real
// mailbox.
type chanMailbox struct {
	ch  <-chan *acl.Message
	jid acl.Endpoint
}

func (m chanMailbox) Receive(ctx context.Context) (*acl.Message, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m chanMailbox) Endpoint() acl.Endpoint { return m.jid }

// Run performs the initial allocation, schedules the departure timer, then
// services reallocation-request/deallocation-request until the agent departs
// or ctx is cancelled. It returns a non-nil error when the initial allocation
// or a reallocation finds no slot (or its auction fails), and ctx.Err() when
// ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	go a.pump(ctx)

	start := time.Now()
	if err := a.allocate(ctx, a.known); err != nil {
		observability.RecordAllocationAuction("refused", time.Since(start).Seconds())
		return err
	}
	observability.RecordAllocationAuction("allocated", time.Since(start).Seconds())

	a.timer = concurrency.AfterTime(a.departureTime, func() {
		select {
		case a.departCh <- struct{}{}:
		default:
		}
	})
	defer a.timer.Stop()

	for {
		select {
		case msg := <-a.unsolicitedCh:
			done, err := a.dispatchUnsolicited(ctx, msg)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case <-a.departCh:
			a.performSelfDeallocation(ctx)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Agent) dispatchUnsolicited(ctx context.Context, msg *acl.Message) (bool, error) {
	element, err := a.contentManager.Extract(msg)
	if err != nil {
		_ = a.base.Send(ctx, msg.Reply(acl.FAILURE))
		return false, nil
	}

	switch req := element.(type) {
	case ontology.ReallocationRequest:
		return false, a.handleReallocationRequest(ctx, msg, req)
	case ontology.DeallocationRequest:
		a.handleExternalDeallocation(ctx, msg, req)
		return true, nil
	default:
		_ = a.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
		return false, nil
	}
}

// handleReallocationRequest is the reallocation responder: acquire the
// lock, AGREE, then re-run the allocation initiator over every known slot
// except the one that just evicted this container, and hold the lock across
// the whole sub-auction. A slotId mismatch means this container already
// moved on its own; that is a defensive no-op, not an error.
func (a *Agent) handleReallocationRequest(ctx context.Context, msg *acl.Message, req ontology.ReallocationRequest) error {
	if err := a.lock.Acquire(ctx); err != nil {
		return err
	}
	defer a.lock.Release()

	_ = a.base.Send(ctx, msg.Reply(acl.AGREE))

	if req.SlotID != a.currentSlotID {
		_ = a.base.Send(ctx, msg.Reply(acl.INFORM))
		return nil
	}

	available := excludeEndpoint(a.known, msg.Sender)
	if err := a.allocate(ctx, available); err != nil {
		a.base.Logger.Error("reallocation_exhausted", "error", err.Error())
		return err
	}
	_ = a.base.Send(ctx, msg.Reply(acl.INFORM))
	return nil
}

func (a *Agent) handleExternalDeallocation(ctx context.Context, msg *acl.Message, _ ontology.DeallocationRequest) {
	if a.performSelfDeallocation(ctx) {
		_ = a.base.Send(ctx, msg.Reply(acl.INFORM))
		return
	}
	_ = a.base.Send(ctx, msg.Reply(acl.FAILURE))
}

// allocate runs the allocation initiator to a definite outcome: either a
// confirmed slot is recorded, or every candidate has refused. A PROPOSE that
// is accepted but then loses the race to another container (S4) retires
// that slot from the candidate set and runs another round rather than
// giving up, since the remaining candidates never got a chance to bid.
func (a *Agent) allocate(ctx context.Context, available []acl.Endpoint) error {
	for {
		if len(available) == 0 {
			return fmt.Errorf("container %s: exhausted allocation options", a.ContainerID)
		}

		slotID, winnerJID, hadProposal, confirmed, err := a.runAuction(ctx, available)
		if err != nil {
			return err
		}
		if !hadProposal {
			return fmt.Errorf("container %s: every slot refused allocation", a.ContainerID)
		}
		if confirmed {
			a.currentSlotID = slotID
			a.currentSlotJID = winnerJID
			return nil
		}
		available = excludeEndpoint(available, winnerJID)
	}
}

// runAuction drives one Contract-Net round over available: fan out CFPs,
// accept the proposal with the lowest evaluation score (ties broken by
// endpoint name, for determinism), reject the rest, then await the winner's
// result notification.
func (a *Agent) runAuction(ctx context.Context, available []acl.Endpoint) (slotID string, winnerJID acl.Endpoint, hadProposal, confirmed bool, err error) {
	type candidate struct {
		msg      *acl.Message
		proposal ontology.AllocationProposal
	}

	mailbox := chanMailbox{ch: a.replyCh, jid: a.base.JID}
	var winnerMsg *acl.Message
	var confirmedSlotID string

	hooks := behavior.ContractNetInitiatorHooks{
		PrepareCFPs: func(context.Context) ([]*acl.Message, error) {
			cfps := make([]*acl.Message, 0, len(available))
			for _, slotJID := range available {
				msg := acl.New(a.base.JID, slotJID, acl.CFP)
				if fillErr := a.contentManager.Fill(ontology.PortTerminal.Name(), msg, ontology.AllocationRequest{
					ContainerData: ontology.ContainerData{ID: a.ContainerID, DepartureTime: a.departureTime},
				}); fillErr != nil {
					return nil, fillErr
				}
				cfps = append(cfps, msg)
			}
			return cfps, nil
		},
		HandleAllResponses: func(responses []*acl.Message) (acceptances, rejections []*acl.Message) {
			var candidates []candidate
			for _, resp := range responses {
				if resp.Performative != acl.PROPOSE {
					continue
				}
				element, extractErr := a.contentManager.Extract(resp)
				if extractErr != nil {
					continue
				}
				proposal, ok := element.(ontology.AllocationProposal)
				if !ok {
					continue
				}
				candidates = append(candidates, candidate{msg: resp, proposal: proposal})
			}
			if len(candidates) == 0 {
				return nil, nil
			}

			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].proposal.SecondsFromForcedReallocationToDeparture != candidates[j].proposal.SecondsFromForcedReallocationToDeparture {
					return candidates[i].proposal.SecondsFromForcedReallocationToDeparture < candidates[j].proposal.SecondsFromForcedReallocationToDeparture
				}
				return candidates[i].msg.Sender < candidates[j].msg.Sender
			})

			winnerMsg = candidates[0].msg
			accept := winnerMsg.Reply(acl.ACCEPT_PROPOSAL)
			_ = a.contentManager.Fill(ontology.PortTerminal.Name(), accept, ontology.AllocationProposalAcceptance{
				ContainerData: ontology.ContainerData{ID: a.ContainerID, DepartureTime: a.departureTime},
			})
			acceptances = []*acl.Message{accept}
			for _, c := range candidates[1:] {
				rejections = append(rejections, c.msg.Reply(acl.REJECT_PROPOSAL))
			}
			return acceptances, rejections
		},
	}
	hooks.HandleAllResultNotifications = func(notifications []*acl.Message) {
		if len(notifications) == 0 || notifications[0].Performative != acl.INFORM {
			return
		}
		element, extractErr := a.contentManager.Extract(notifications[0])
		if extractErr != nil {
			return
		}
		confirmation, ok := element.(ontology.AllocationConfirmation)
		if !ok {
			return
		}
		confirmedSlotID = confirmation.SlotID
	}

	initiator := behavior.NewContractNetInitiator(a.base.Bus, mailbox, hooks, a.base.Logger)
	if runErr := initiator.Run(ctx); runErr != nil {
		return "", "", false, false, runErr
	}
	if winnerMsg == nil {
		return "", "", false, false, nil
	}
	if confirmedSlotID == "" {
		return "", winnerMsg.Sender, true, false, nil
	}
	return confirmedSlotID, winnerMsg.Sender, true, true, nil
}

// performSelfDeallocation sends self-deallocation-request to the current
// slot manager and awaits its outcome, under the agent's exclusive lock. It
// reports true only on INFORM; a REFUSE/FAILURE response, or having no slot
// at all, is a normal stop condition, not an error.
func (a *Agent) performSelfDeallocation(ctx context.Context) bool {
	if err := a.lock.Acquire(ctx); err != nil {
		return false
	}
	defer a.lock.Release()

	if a.currentSlotID == "" {
		return false
	}

	req := acl.New(a.base.JID, a.currentSlotJID, acl.REQUEST)
	if err := a.contentManager.Fill(ontology.PortTerminal.Name(), req, ontology.SelfDeallocationRequest{ContainerID: a.ContainerID}); err != nil {
		return false
	}

	mailbox := chanMailbox{ch: a.replyCh, jid: a.base.JID}
	var agreed, completed bool
	hooks := behavior.RequestInitiatorHooks{
		PrepareRequests: func(context.Context) ([]*acl.Message, error) {
			return []*acl.Message{req}, nil
		},
		HandleAllResponses: func(responses []*acl.Message) {
			if len(responses) > 0 && responses[0].Performative == acl.AGREE {
				agreed = true
			}
		},
		HandleAllResultNotifications: func(notifications []*acl.Message) {
			if len(notifications) > 0 && notifications[0].Performative == acl.INFORM {
				completed = true
			}
		},
	}

	initiator := behavior.NewRequestInitiator(a.base.Bus, mailbox, hooks, a.base.Logger)
	if err := initiator.Run(ctx); err != nil {
		return false
	}
	if !agreed {
		a.base.Logger.Warn("self_deallocation_refused", "slot", string(a.currentSlotJID))
		return false
	}
	if !completed {
		a.base.Logger.Warn("self_deallocation_failed", "slot", string(a.currentSlotJID))
		return false
	}

	a.currentSlotID = ""
	a.currentSlotJID = ""
	observability.RecordDeallocation("self")
	return true
}

func excludeEndpoint(list []acl.Endpoint, target acl.Endpoint) []acl.Endpoint {
	out := make([]acl.Endpoint, 0, len(list))
	for _, e := range list {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// CurrentSlotID returns the slot this container currently occupies, or "" if
// it holds none. For tests and observability.
func (a *Agent) CurrentSlotID() string { return a.currentSlotID }

// Close unregisters the agent's mailbox.
func (a *Agent) Close() { a.base.Close() }
