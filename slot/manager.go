// Package slot implements the per-slot stack manager: auction responder for
// allocation, and cascade owner for self-deallocation.
package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/agent"
	"github.com/portstack/yardctl/concurrency"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/ontology"
	"github.com/portstack/yardctl/transport"
)

// item is a single stack entry, bottom-to-top order within Manager.stack.
type item struct {
	ContainerID   string
	DepartureTime time.Time
	ContainerJID  acl.Endpoint
}

// Manager owns one slot's stack. One slot manager per configured slot id;
// lives for the whole deployment.
type Manager struct {
	base *agent.Base

	SlotID    string
	MaxHeight int

	lock           *concurrency.ExclusiveLock
	contentManager *ontology.ContentManager
	dfJID          acl.Endpoint

	stack   []item
	pending []*acl.Message
}

// New creates a slot manager bound to jid, with capacity maxHeight, and
// registers it with the directory facilitator at dfJID.
func New(ctx context.Context, bus transport.Bus, jid acl.Endpoint, slotID string, maxHeight int, dfJID acl.Endpoint, logger logging.Logger) (*Manager, error) {
	base, err := agent.NewBase(bus, jid, logger.Bind("slot_id", slotID))
	if err != nil {
		return nil, err
	}

	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)
	cm.Register(ontology.DF)

	m := &Manager{
		base:           base,
		SlotID:         slotID,
		MaxHeight:      maxHeight,
		lock:           concurrency.NewExclusiveLock(),
		contentManager: cm,
		dfJID:          dfJID,
	}

	if err := m.registerWithDF(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) registerWithDF(ctx context.Context) error {
	req := acl.New(m.base.JID, m.dfJID, acl.REQUEST)
	desc := ontology.DFAgentDescription{
		AgentName:           string(m.base.JID),
		InteractionProtocol: string(acl.ProtocolContractNet),
		Ontology:            ontology.PortTerminal.Name(),
		Language:            "json",
		Service: ontology.ServiceDescription{
			Properties: map[string]string{"slot_id": m.SlotID},
		},
	}
	if err := m.contentManager.Fill(ontology.DF.Name(), req, ontology.RegisterServiceRequest{Request: desc}); err != nil {
		return err
	}
	if err := m.base.Send(ctx, req); err != nil {
		return err
	}

	reply, err := m.receiveMatching(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if reply.Performative != acl.INFORM {
		return fmt.Errorf("slot %s: df registration failed: %s", m.SlotID, reply.Performative)
	}
	return nil
}

// Run processes incoming requests until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		msg, err := m.nextMessage(ctx)
		if err != nil {
			return err
		}
		m.dispatch(ctx, msg)
	}
}

func (m *Manager) nextMessage(ctx context.Context) (*acl.Message, error) {
	if len(m.pending) > 0 {
		msg := m.pending[0]
		m.pending = m.pending[1:]
		return msg, nil
	}
	return m.base.Receive(ctx)
}

// receiveMatching waits for a message whose ConversationID equals convID,
// stashing every other message that arrives in the meantime so the main
// loop can still see it. A slot manager processes one request at a time;
// this lets a cascade's sub-request/reply round trip happen inline without
// losing unrelated traffic that shows up while it waits.
func (m *Manager) receiveMatching(ctx context.Context, convID string) (*acl.Message, error) {
	for i, msg := range m.pending {
		if msg.ConversationID == convID {
			m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
			return msg, nil
		}
	}
	for {
		msg, err := m.base.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if msg.ConversationID == convID {
			return msg, nil
		}
		m.pending = append(m.pending, msg)
	}
}

func (m *Manager) dispatch(ctx context.Context, msg *acl.Message) {
	switch msg.Performative {
	case acl.CFP:
		m.handleCFP(ctx, msg)
	case acl.ACCEPT_PROPOSAL:
		m.handleAcceptProposal(ctx, msg)
	case acl.REJECT_PROPOSAL:
		// no state change
	case acl.REQUEST:
		m.handleSelfDeallocation(ctx, msg)
	default:
		m.base.Logger.Warn("slot_unexpected_performative", "performative", msg.Performative.String())
	}
}

// handleCFP implements the allocation-auction responder side.
func (m *Manager) handleCFP(ctx context.Context, msg *acl.Message) {
	element, err := m.contentManager.Extract(msg)
	if err != nil {
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}
	request, ok := element.(ontology.AllocationRequest)
	if !ok {
		_ = m.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
		return
	}

	if err := m.lock.Acquire(ctx); err != nil {
		return
	}

	if len(m.stack) == m.MaxHeight {
		m.lock.Release()
		_ = m.base.Send(ctx, msg.Reply(acl.REFUSE))
		return
	}
	if m.contains(request.ContainerData.ID) {
		m.lock.Release()
		_ = m.base.Send(ctx, msg.Reply(acl.REFUSE))
		return
	}

	score := m.evaluationScore(request.ContainerData.DepartureTime)
	m.lock.Release()

	observability.RecordAllocationProposalScore(float64(score))

	reply := msg.Reply(acl.PROPOSE)
	_ = m.contentManager.Fill(ontology.PortTerminal.Name(), reply, ontology.AllocationProposal{
		SlotID: m.SlotID,
		SecondsFromForcedReallocationToDeparture: score,
	})
	_ = m.base.Send(ctx, reply)
}

// evaluationScore computes E = max(0, max over stack of (t_dep - t_i)) in
// whole seconds. Callers must hold m.lock.
func (m *Manager) evaluationScore(departure time.Time) int {
	best := 0
	for _, it := range m.stack {
		delta := int(departure.Sub(it.DepartureTime).Seconds())
		if delta > best {
			best = delta
		}
	}
	return best
}

func (m *Manager) contains(containerID string) bool {
	for _, it := range m.stack {
		if it.ContainerID == containerID {
			return true
		}
	}
	return false
}

func (m *Manager) handleAcceptProposal(ctx context.Context, msg *acl.Message) {
	element, err := m.contentManager.Extract(msg)
	if err != nil {
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}
	acceptance, ok := element.(ontology.AllocationProposalAcceptance)
	if !ok {
		_ = m.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
		return
	}

	if err := m.lock.Acquire(ctx); err != nil {
		return
	}

	if len(m.stack) == m.MaxHeight {
		m.lock.Release()
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}

	m.stack = append(m.stack, item{
		ContainerID:   acceptance.ContainerData.ID,
		DepartureTime: acceptance.ContainerData.DepartureTime,
		ContainerJID:  msg.Sender,
	})
	depth := len(m.stack)
	m.lock.Release()

	observability.SetSlotStackDepth(m.SlotID, depth)

	reply := msg.Reply(acl.INFORM)
	_ = m.contentManager.Fill(ontology.PortTerminal.Name(), reply, ontology.AllocationConfirmation{SlotID: m.SlotID})
	_ = m.base.Send(ctx, reply)
}

// handleSelfDeallocation implements the request-responder side of
// self-deallocation: AwaitRequest -> AgreedPendingResult. The exclusive
// lock is held from the AGREE decision through the whole cascade, matching
// the critical-section contract of the request-responder protocol.
func (m *Manager) handleSelfDeallocation(ctx context.Context, msg *acl.Message) {
	element, err := m.contentManager.Extract(msg)
	if err != nil {
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}
	request, ok := element.(ontology.SelfDeallocationRequest)
	if !ok {
		_ = m.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
		return
	}

	if err := m.lock.Acquire(ctx); err != nil {
		return
	}

	index := m.indexOf(request.ContainerID)
	if index < 0 {
		m.lock.Release()
		_ = m.base.Send(ctx, msg.Reply(acl.REFUSE))
		return
	}

	_ = m.base.Send(ctx, msg.Reply(acl.AGREE))

	blockers := append([]item(nil), m.stack[index+1:]...)
	m.stack = m.stack[:index]

	cascadeLen := len(blockers)
	for i := len(blockers) - 1; i >= 0; i-- {
		blocker := blockers[i]
		if err := m.reallocate(ctx, blocker); err != nil {
			m.lock.Release()
			m.base.Logger.Error("reallocation_failed", "container", blocker.ContainerID, "error", err.Error())
			panic(fmt.Sprintf("slot %s: reallocation of %s violated its contract: %v", m.SlotID, blocker.ContainerID, err))
		}
	}

	depth := len(m.stack)
	m.lock.Release()

	observability.SetSlotStackDepth(m.SlotID, depth)
	observability.RecordReallocationCascade(cascadeLen)
	observability.RecordDeallocation("self")

	result := msg.Reply(acl.INFORM)
	_ = m.base.Send(ctx, result)
}

func (m *Manager) indexOf(containerID string) int {
	for i, it := range m.stack {
		if it.ContainerID == containerID {
			return i
		}
	}
	return -1
}

// reallocate sends a reallocation-request to blocker's owning container and
// awaits its INFORM. A REFUSE/FAILURE response is a contract violation: the
// container contract forbids declining a reallocation.
func (m *Manager) reallocate(ctx context.Context, blocker item) error {
	req := acl.New(m.base.JID, blocker.ContainerJID, acl.REQUEST)
	if err := m.contentManager.Fill(ontology.PortTerminal.Name(), req, ontology.ReallocationRequest{SlotID: m.SlotID}); err != nil {
		return err
	}
	if err := m.base.Send(ctx, req); err != nil {
		return err
	}

	reply, err := m.receiveMatching(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if reply.Performative != acl.INFORM {
		return fmt.Errorf("expected INFORM, got %s", reply.Performative)
	}
	return nil
}

// StackDepth returns the current occupancy, for tests and observability.
func (m *Manager) StackDepth() int {
	return len(m.stack)
}

// Contains reports whether containerID currently occupies this slot.
func (m *Manager) Contains(containerID string) bool {
	return m.contains(containerID)
}
