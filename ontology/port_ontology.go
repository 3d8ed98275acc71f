package ontology

import "time"

// ContainerData describes a container subject to slot allocation: its id
// and its scheduled departure instant.
type ContainerData struct {
	ID            string    `json:"id"`
	DepartureTime time.Time `json:"departureTime"`
}

// Key implements ContentElement.
func (ContainerData) Key() string { return "container-data" }

func buildContainerData(fields map[string]any) ContainerData {
	var c ContainerData
	c.ID, _ = fieldString(fields, "id")
	if raw, ok := fieldString(fields, "departureTime"); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.DepartureTime = t
		}
	}
	return c
}

// AllocationRequest is the CFP body a container agent sends when asking a
// slot manager to bid for a berth.
type AllocationRequest struct {
	ContainerData ContainerData `json:"containerData"`
}

// Key implements ContentElement.
func (AllocationRequest) Key() string { return "allocation-request" }

// AllocationProposal is a slot manager's PROPOSE reply: the slot it is
// bidding with and the forced-reallocation cost the container would incur
// if placed there.
type AllocationProposal struct {
	SlotID                                   string `json:"slotId"`
	SecondsFromForcedReallocationToDeparture int    `json:"secondsFromForcedReallocationToDeparture"`
}

// Key implements ContentElement.
func (AllocationProposal) Key() string { return "allocation-proposal" }

// AllocationConfirmation is a slot manager's INFORM reply after it has
// pushed the container onto its stack.
type AllocationConfirmation struct {
	SlotID string `json:"slotId"`
}

// Key implements ContentElement.
func (AllocationConfirmation) Key() string { return "allocation-confirmation" }

// AllocationProposalAcceptance is the container agent's ACCEPT_PROPOSAL
// body, repeating the container data so the slot manager can push it.
type AllocationProposalAcceptance struct {
	ContainerData ContainerData `json:"containerData"`
}

// Key implements ContentElement.
func (AllocationProposalAcceptance) Key() string { return "allocation-proposal-acceptance" }

// SelfDeallocationRequest is the container agent's REQUEST to its own slot
// manager to remove it from the stack.
type SelfDeallocationRequest struct {
	ContainerID string `json:"containerId"`
}

// Key implements ContentElement.
func (SelfDeallocationRequest) Key() string { return "self-deallocation-request" }

// ReallocationRequest is a slot manager's REQUEST to a blocked container
// agent asking it to find itself a new slot.
type ReallocationRequest struct {
	SlotID string `json:"slotId"`
}

// Key implements ContentElement.
func (ReallocationRequest) Key() string { return "reallocation-request" }

// ContainersDeallocationRequest is a truck's REQUEST to the port manager
// naming every container endpoint it came to collect. The field stays an
// opaque list of endpoints rather than a list of bare ids: a truck only
// knows where to send the request, not which slot each container occupies.
type ContainersDeallocationRequest struct {
	ContainersJIDs []string `json:"containersJids"`
}

// Key implements ContentElement.
func (ContainersDeallocationRequest) Key() string { return "containers-deallocation-request" }

// DeallocationRequest is the port manager's REQUEST to a single container
// agent, sent one at a time and awaited to completion before the next.
type DeallocationRequest struct {
	ContainerID string `json:"containerId"`
}

// Key implements ContentElement.
func (DeallocationRequest) Key() string { return "deallocation-request" }

// PortTerminal is the port-terminal domain ontology.
var PortTerminal = buildPortTerminalOntology()

func buildPortTerminalOntology() *Ontology {
	o := New("PortTerminalOntology")

	o.Add("container-data", func(fields map[string]any) (ContentElement, error) {
		return buildContainerData(fields), nil
	})

	o.Add("allocation-request", func(fields map[string]any) (ContentElement, error) {
		cd, _ := fieldMap(fields, "containerData")
		return AllocationRequest{ContainerData: buildContainerData(cd)}, nil
	})

	o.Add("allocation-proposal", func(fields map[string]any) (ContentElement, error) {
		var p AllocationProposal
		p.SlotID, _ = fieldString(fields, "slotId")
		p.SecondsFromForcedReallocationToDeparture, _ = fieldInt(fields, "secondsFromForcedReallocationToDeparture")
		return p, nil
	})

	o.Add("allocation-confirmation", func(fields map[string]any) (ContentElement, error) {
		slotID, _ := fieldString(fields, "slotId")
		return AllocationConfirmation{SlotID: slotID}, nil
	})

	o.Add("allocation-proposal-acceptance", func(fields map[string]any) (ContentElement, error) {
		cd, _ := fieldMap(fields, "containerData")
		return AllocationProposalAcceptance{ContainerData: buildContainerData(cd)}, nil
	})

	o.Add("self-deallocation-request", func(fields map[string]any) (ContentElement, error) {
		containerID, _ := fieldString(fields, "containerId")
		return SelfDeallocationRequest{ContainerID: containerID}, nil
	})

	o.Add("reallocation-request", func(fields map[string]any) (ContentElement, error) {
		slotID, _ := fieldString(fields, "slotId")
		return ReallocationRequest{SlotID: slotID}, nil
	})

	o.Add("containers-deallocation-request", func(fields map[string]any) (ContentElement, error) {
		return ContainersDeallocationRequest{ContainersJIDs: fieldStringSlice(fields, "containersJids")}, nil
	})

	o.Add("deallocation-request", func(fields map[string]any) (ContentElement, error) {
		containerID, _ := fieldString(fields, "containerId")
		return DeallocationRequest{ContainerID: containerID}, nil
	})

	return o
}
