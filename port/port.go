// Package port implements the two outbound-logistics actors: the port
// manager, which serializes deallocation across a truck's container list,
// and the truck, which shows up at its own scheduled time and asks the port
// manager to release everything it came to collect.
package port

import (
	"context"
	"fmt"
	"time"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/agent"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/ontology"
	"github.com/portstack/yardctl/transport"
)

// Manager receives a truck's containers-deallocation-request and drives each
// named container's deallocation-request to completion, one at a time, in
// list order, before replying to the truck.
type Manager struct {
	base           *agent.Base
	contentManager *ontology.ContentManager
}

// New creates a port manager bound to jid.
func New(bus transport.Bus, jid acl.Endpoint, logger logging.Logger) (*Manager, error) {
	base, err := agent.NewBase(bus, jid, logger)
	if err != nil {
		return nil, err
	}
	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)
	return &Manager{base: base, contentManager: cm}, nil
}

// Run processes truck requests until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		msg, err := m.base.Receive(ctx)
		if err != nil {
			return err
		}
		m.handle(ctx, msg)
	}
}

func (m *Manager) handle(ctx context.Context, msg *acl.Message) {
	element, err := m.contentManager.Extract(msg)
	if err != nil {
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}

	request, ok := element.(ontology.ContainersDeallocationRequest)
	if !ok {
		_ = m.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
		return
	}

	var failed []string
	for _, containerJID := range request.ContainersJIDs {
		if err := m.deallocateOne(ctx, acl.Endpoint(containerJID)); err != nil {
			failed = append(failed, containerJID)
			m.base.Logger.Warn("container_deallocation_failed", "container", containerJID, "error", err.Error())
		}
	}

	if len(failed) > 0 {
		_ = m.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}
	_ = m.base.Send(ctx, msg.Reply(acl.INFORM))
}

// deallocateOne sends a single deallocation-request and blocks for its
// INFORM/FAILURE reply before returning, so the next container in the
// truck's list is never started early.
func (m *Manager) deallocateOne(ctx context.Context, containerJID acl.Endpoint) error {
	req := acl.New(m.base.JID, containerJID, acl.REQUEST)
	if err := m.contentManager.Fill(ontology.PortTerminal.Name(), req, ontology.DeallocationRequest{ContainerID: string(containerJID)}); err != nil {
		return err
	}
	if err := m.base.Send(ctx, req); err != nil {
		return err
	}

	reply, err := m.base.Receive(ctx)
	if err != nil {
		return err
	}
	observability.RecordDeallocation("port_manager")
	if reply.Performative != acl.INFORM {
		return fmt.Errorf("container %s refused deallocation: %s", containerJID, reply.Performative)
	}
	return nil
}

// Truck carries a fixed container list and shows up at a scheduled arrival
// time to ask the port manager to release every one of them.
type Truck struct {
	base           *agent.Base
	contentManager *ontology.ContentManager

	PortJID       acl.Endpoint
	ArrivalTime   time.Time
	ContainerJIDs []acl.Endpoint
}

// NewTruck creates a truck bound to jid.
func NewTruck(bus transport.Bus, jid acl.Endpoint, portJID acl.Endpoint, arrivalTime time.Time, containerJIDs []acl.Endpoint, logger logging.Logger) (*Truck, error) {
	base, err := agent.NewBase(bus, jid, logger)
	if err != nil {
		return nil, err
	}
	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)
	return &Truck{
		base:           base,
		contentManager: cm,
		PortJID:        portJID,
		ArrivalTime:    arrivalTime,
		ContainerJIDs:  containerJIDs,
	}, nil
}

// Run waits until ArrivalTime, sends the containers-deallocation-request to
// the port manager, and exits immediately — it does not wait to learn
// whether the port manager succeeds.
func (t *Truck) Run(ctx context.Context) error {
	if wait := time.Until(t.ArrivalTime); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	jids := make([]string, 0, len(t.ContainerJIDs))
	for _, j := range t.ContainerJIDs {
		jids = append(jids, string(j))
	}

	req := acl.New(t.base.JID, t.PortJID, acl.REQUEST)
	if err := t.contentManager.Fill(ontology.PortTerminal.Name(), req, ontology.ContainersDeallocationRequest{ContainersJIDs: jids}); err != nil {
		return err
	}
	return t.base.Send(ctx, req)
}

// Close unregisters the truck's mailbox.
func (t *Truck) Close() { t.base.Close() }
