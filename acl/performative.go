// Package acl provides the FIPA-style Agent Communication Language message
// layer: performatives, endpoints, and the wire envelope that the
// Contract-Net and Request protocols are defined in terms of.
package acl

// Performative is the speech-act tag on a message. The set is closed and
// serializes as its integer value.
type Performative int

const (
	AGREE Performative = iota
	REFUSE
	NOT_UNDERSTOOD
	INFORM
	FAILURE
	CFP
	PROPOSE
	ACCEPT_PROPOSAL
	REJECT_PROPOSAL
	REQUEST
	CONFIRM
	DISCONFIRM
	QUERY_IF
	QUERY_REF
	REQUEST_WHEN
	REQUEST_WHENEVER
	SUBSCRIBE
	PROXY
	PROPAGATE
	INFORM_IF
	INFORM_REF
)

var performativeNames = map[Performative]string{
	AGREE:            "AGREE",
	REFUSE:           "REFUSE",
	NOT_UNDERSTOOD:   "NOT_UNDERSTOOD",
	INFORM:           "INFORM",
	FAILURE:          "FAILURE",
	CFP:              "CFP",
	PROPOSE:          "PROPOSE",
	ACCEPT_PROPOSAL:  "ACCEPT_PROPOSAL",
	REJECT_PROPOSAL:  "REJECT_PROPOSAL",
	REQUEST:          "REQUEST",
	CONFIRM:          "CONFIRM",
	DISCONFIRM:       "DISCONFIRM",
	QUERY_IF:         "QUERY_IF",
	QUERY_REF:        "QUERY_REF",
	REQUEST_WHEN:     "REQUEST_WHEN",
	REQUEST_WHENEVER: "REQUEST_WHENEVER",
	SUBSCRIBE:        "SUBSCRIBE",
	PROXY:            "PROXY",
	PROPAGATE:        "PROPAGATE",
	INFORM_IF:        "INFORM_IF",
	INFORM_REF:       "INFORM_REF",
}

// String implements fmt.Stringer for readable logs.
func (p Performative) String() string {
	if name, ok := performativeNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ProtocolTag is a free-form routing tag carried in message metadata.
type ProtocolTag string

const (
	ProtocolContractNet ProtocolTag = "ContractNet"
	ProtocolRequest     ProtocolTag = "Request"
)
