package df

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

func newTestDF(t *testing.T) (*DirectoryFacilitator, transport.Bus, transport.Mailbox) {
	t.Helper()
	bus := transport.NewInMemoryBus(8)
	facilitator, err := New(bus, "df@yard", logging.Nop())
	require.NoError(t, err)

	clientMB, err := bus.Register("client@yard")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	go func() { _ = facilitator.Run(ctx) }()

	return facilitator, bus, clientMB
}

func register(t *testing.T, bus transport.Bus, mb transport.Mailbox, cm *ontology.ContentManager, desc ontology.DFAgentDescription) {
	t.Helper()
	req := acl.New("client@yard", "df@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.DF.Name(), req, ontology.RegisterServiceRequest{Request: desc}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Send(ctx, req))

	reply, err := mb.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, acl.INFORM, reply.Performative)
}

func search(t *testing.T, bus transport.Bus, mb transport.Mailbox, cm *ontology.ContentManager, template ontology.DFAgentDescription) []ontology.DFAgentDescription {
	t.Helper()
	req := acl.New("client@yard", "df@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.DF.Name(), req, ontology.SearchServiceRequest{Request: template}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Send(ctx, req))

	reply, err := mb.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, acl.INFORM, reply.Performative)

	element, err := cm.Extract(reply)
	require.NoError(t, err)
	resp, ok := element.(ontology.SearchServiceResponse)
	require.True(t, ok)
	return resp.List
}

func newContentManager() *ontology.ContentManager {
	cm := ontology.NewContentManager()
	cm.Register(ontology.DF)
	return cm
}

func TestDF_RegisterThenSearchByAgentName(t *testing.T) {
	_, bus, clientMB := newTestDF(t)
	cm := newContentManager()

	desc := ontology.DFAgentDescription{
		AgentName: "slot-1@yard",
		Ontology:  "PortTerminalOntology",
		Service:   ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
	}
	register(t, bus, clientMB, cm, desc)

	results := search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName: "slot-1@yard",
		Service:   ontology.ServiceDescription{Properties: map[string]string{}},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "slot-1@yard", results[0].AgentName)
}

func TestDF_SearchIgnoresOntologyLanguageProtocol(t *testing.T) {
	_, bus, clientMB := newTestDF(t)
	cm := newContentManager()

	desc := ontology.DFAgentDescription{
		AgentName:           "slot-2@yard",
		Ontology:            "PortTerminalOntology",
		Language:            "json",
		InteractionProtocol: "fipa-contract-net",
		Service:             ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
	}
	register(t, bus, clientMB, cm, desc)

	// Template names a different ontology/language/protocol, which search
	// must ignore; only agentName and the service property bag matter.
	results := search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName:           "slot-2@yard",
		Ontology:            "SomethingElse",
		Language:            "xml",
		InteractionProtocol: "fipa-request",
		Service:             ontology.ServiceDescription{Properties: map[string]string{}},
	})
	require.Len(t, results, 1)
}

func TestDF_SearchBySubsetOfProperties(t *testing.T) {
	_, bus, clientMB := newTestDF(t)
	cm := newContentManager()

	register(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName: "slot-3@yard",
		Service:   ontology.ServiceDescription{Properties: map[string]string{"type": "slot", "zone": "A"}},
	})

	results := search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		Service: ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "slot-3@yard", results[0].AgentName)
}

func TestDF_SearchNoMatchReturnsEmptyList(t *testing.T) {
	_, bus, clientMB := newTestDF(t)
	cm := newContentManager()

	results := search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName: "nobody@yard",
		Service:   ontology.ServiceDescription{Properties: map[string]string{}},
	})
	assert.Empty(t, results)
}

func TestDF_DeregisterChecksOntologyLanguageProtocol(t *testing.T) {
	_, bus, clientMB := newTestDF(t)
	cm := newContentManager()

	desc := ontology.DFAgentDescription{
		AgentName: "slot-4@yard",
		Ontology:  "PortTerminalOntology",
		Language:  "json",
		Service:   ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
	}
	register(t, bus, clientMB, cm, desc)

	// Deregister template names the wrong language: must not remove it.
	deregReq := acl.New("client@yard", "df@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.DF.Name(), deregReq, ontology.DeregisterServiceRequest{
		Request: ontology.DFAgentDescription{
			AgentName: "slot-4@yard",
			Language:  "xml",
			Service:   ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
		},
	}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Send(ctx, deregReq))
	reply, err := clientMB.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, acl.INFORM, reply.Performative)

	results := search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName: "slot-4@yard",
		Service:   ontology.ServiceDescription{Properties: map[string]string{}},
	})
	require.Len(t, results, 1, "mismatched deregister template must not remove the registration")

	// Now deregister with the matching language.
	deregReq2 := acl.New("client@yard", "df@yard", acl.REQUEST)
	require.NoError(t, cm.Fill(ontology.DF.Name(), deregReq2, ontology.DeregisterServiceRequest{
		Request: ontology.DFAgentDescription{
			AgentName: "slot-4@yard",
			Language:  "json",
			Service:   ontology.ServiceDescription{Properties: map[string]string{"type": "slot"}},
		},
	}))
	require.NoError(t, bus.Send(ctx, deregReq2))
	reply2, err := clientMB.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, acl.INFORM, reply2.Performative)

	results = search(t, bus, clientMB, cm, ontology.DFAgentDescription{
		AgentName: "slot-4@yard",
		Service:   ontology.ServiceDescription{Properties: map[string]string{}},
	})
	assert.Empty(t, results)
}

func TestDF_MalformedRequestGetsFailure(t *testing.T) {
	_, bus, clientMB := newTestDF(t)

	bad := acl.New("client@yard", "df@yard", acl.REQUEST)
	bad.Ontology = "DFOntology"
	bad.Action = "register-service-request"
	bad.Body = "{not json"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Send(ctx, bad))

	reply, err := clientMB.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, acl.FAILURE, reply.Performative)
}
