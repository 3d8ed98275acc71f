package ontology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portstack/yardctl/acl"
)

func newTestManager() *ContentManager {
	cm := NewContentManager()
	cm.Register(DF)
	cm.Register(PortTerminal)
	return cm
}

func TestContentManager_FillExtractRoundTrip_DF(t *testing.T) {
	cm := newTestManager()
	msg := acl.New("container-1@yard", "df@yard", acl.REQUEST)

	req := RegisterServiceRequest{
		Request: DFAgentDescription{
			AgentName:           "container-1@yard",
			InteractionProtocol: string(acl.ProtocolContractNet),
			Ontology:            "PortTerminalOntology",
			Language:            "json",
			Service: ServiceDescription{
				Properties: map[string]string{"type": "container"},
			},
		},
	}

	require.NoError(t, cm.Fill(DF.Name(), msg, req))
	assert.Equal(t, "register-service-request", msg.Action)
	assert.Equal(t, "DFOntology", msg.Ontology)

	extracted, err := cm.Extract(msg)
	require.NoError(t, err)

	got, ok := extracted.(RegisterServiceRequest)
	require.True(t, ok)
	assert.Equal(t, req.Request.AgentName, got.Request.AgentName)
	assert.Equal(t, req.Request.Service.Properties["type"], got.Request.Service.Properties["type"])
}

func TestContentManager_FillExtractRoundTrip_PortTerminal(t *testing.T) {
	cm := newTestManager()
	msg := acl.New("slot-3@yard", "container-7@yard", acl.PROPOSE)

	proposal := AllocationProposal{
		SlotID: "slot-3",
		SecondsFromForcedReallocationToDeparture: 42,
	}
	require.NoError(t, cm.Fill(PortTerminal.Name(), msg, proposal))

	extracted, err := cm.Extract(msg)
	require.NoError(t, err)

	got, ok := extracted.(AllocationProposal)
	require.True(t, ok)
	assert.Equal(t, proposal, got)
}

func TestContentManager_ContainerDataRoundTrip_PreservesDepartureTime(t *testing.T) {
	cm := newTestManager()
	msg := acl.New("container-1@yard", "slot-1@yard", acl.CFP)

	departure := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	req := AllocationRequest{
		ContainerData: ContainerData{ID: "c1", DepartureTime: departure},
	}
	require.NoError(t, cm.Fill(PortTerminal.Name(), msg, req))

	extracted, err := cm.Extract(msg)
	require.NoError(t, err)

	got, ok := extracted.(AllocationRequest)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ContainerData.ID)
	assert.True(t, departure.Equal(got.ContainerData.DepartureTime))
}

func TestContentManager_Extract_UnknownOntology(t *testing.T) {
	cm := newTestManager()
	msg := &acl.Message{Ontology: "no-such-ontology", Body: "{}"}

	_, err := cm.Extract(msg)
	require.Error(t, err)
	assert.IsType(t, ErrUnknownOntology{}, err)
}

func TestContentManager_Extract_UnknownAction(t *testing.T) {
	cm := newTestManager()
	msg := &acl.Message{Ontology: PortTerminal.Name(), Action: "no-such-action", Body: "{}"}

	_, err := cm.Extract(msg)
	require.Error(t, err)
	assert.IsType(t, ErrUnknownAction{}, err)
}

func TestContentManager_Extract_MalformedBody(t *testing.T) {
	cm := newTestManager()
	msg := &acl.Message{Ontology: PortTerminal.Name(), Action: "allocation-proposal", Body: "not json"}

	_, err := cm.Extract(msg)
	require.Error(t, err)
	assert.IsType(t, ErrMalformedContent{}, err)
}

func TestContentManager_ContainersDeallocationRequest_JIDList(t *testing.T) {
	cm := newTestManager()
	msg := acl.New("truck-1@yard", "port-manager@yard", acl.REQUEST)

	req := ContainersDeallocationRequest{ContainersJIDs: []string{"c1@yard", "c2@yard"}}
	require.NoError(t, cm.Fill(PortTerminal.Name(), msg, req))

	extracted, err := cm.Extract(msg)
	require.NoError(t, err)

	got, ok := extracted.(ContainersDeallocationRequest)
	require.True(t, ok)
	assert.ElementsMatch(t, req.ContainersJIDs, got.ContainersJIDs)
}

func TestOntology_AddDuplicateKeyPanics(t *testing.T) {
	o := New("dup")
	o.Add("x", func(map[string]any) (ContentElement, error) { return nil, nil })
	assert.Panics(t, func() {
		o.Add("x", func(map[string]any) (ContentElement, error) { return nil, nil })
	})
}
