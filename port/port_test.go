package port

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/ontology"
	"github.com/portstack/yardctl/transport"
)

// fakeContainer answers exactly one deallocation-request with outcome, then
// stops. Good enough to exercise the port manager's sequencing without
// pulling in the full container/slot stack.
func fakeContainer(t *testing.T, ctx context.Context, bus transport.Bus, jid acl.Endpoint, outcome acl.Performative) {
	t.Helper()
	mb, err := bus.Register(jid)
	require.NoError(t, err)
	go func() {
		msg, err := mb.Receive(ctx)
		if err != nil {
			return
		}
		_ = bus.Send(ctx, msg.Reply(outcome))
	}()
}

func TestPortManager_DeallocatesContainersInOrderThenInforms(t *testing.T) {
	bus := transport.NewInMemoryBus(8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mgr, err := New(bus, "port@yard", logging.Nop())
	require.NoError(t, err)
	go func() { _ = mgr.Run(ctx) }()

	fakeContainer(t, ctx, bus, "container-a@yard", acl.INFORM)
	fakeContainer(t, ctx, bus, "container-b@yard", acl.INFORM)

	truckMB, err := bus.Register("truck@yard")
	require.NoError(t, err)
	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)

	req := acl.New("truck@yard", "port@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.PortTerminal.Name(), req, ontology.ContainersDeallocationRequest{
		ContainersJIDs: []string{"container-a@yard", "container-b@yard"},
	}))
	require.NoError(t, bus.Send(ctx, req))

	reply, err := truckMB.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, acl.INFORM, reply.Performative)
}

func TestPortManager_ContainerFailureReportsFailure(t *testing.T) {
	bus := transport.NewInMemoryBus(8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mgr, err := New(bus, "port@yard", logging.Nop())
	require.NoError(t, err)
	go func() { _ = mgr.Run(ctx) }()

	fakeContainer(t, ctx, bus, "container-c@yard", acl.FAILURE)

	truckMB, err := bus.Register("truck2@yard")
	require.NoError(t, err)
	cm := ontology.NewContentManager()
	cm.Register(ontology.PortTerminal)

	req := acl.New("truck2@yard", "port@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.PortTerminal.Name(), req, ontology.ContainersDeallocationRequest{
		ContainersJIDs: []string{"container-c@yard"},
	}))
	require.NoError(t, bus.Send(ctx, req))

	reply, err := truckMB.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, acl.FAILURE, reply.Performative)
}

func TestTruck_WaitsForArrivalThenSendsRequest(t *testing.T) {
	bus := transport.NewInMemoryBus(8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	portMB, err := bus.Register("port2@yard")
	require.NoError(t, err)

	arrival := time.Now().Add(100 * time.Millisecond)
	truck, err := NewTruck(bus, "truck3@yard", "port2@yard", arrival, []acl.Endpoint{"container-d@yard"}, logging.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- truck.Run(ctx) }()

	before := time.Now()
	_, err = portMB.Receive(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(before), 50*time.Millisecond)

	// The truck exits as soon as its request is sent; it never waits for the
	// port manager's result notification.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("truck did not exit after sending its request")
	}
}
