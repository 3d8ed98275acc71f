package acl

import "github.com/google/uuid"

// Endpoint identifies a named transport participant in the form
// localpart@domain[/resource]. The concrete form is opaque to this package;
// callers compare endpoints as plain strings.
type Endpoint string

// Message is the ACL envelope exchanged between agents. Ownership transfers
// with send: the receiver may mutate its own copy freely.
type Message struct {
	Sender         Endpoint
	Recipient      Endpoint
	ConversationID string
	ReplyTo        string
	Performative   Performative
	Ontology       string
	Action         string
	Language       string
	Protocol       ProtocolTag
	Body           string
}

// New creates a message originating a fresh conversation.
func New(sender, recipient Endpoint, performative Performative) *Message {
	return &Message{
		Sender:         sender,
		Recipient:      recipient,
		ConversationID: uuid.NewString(),
		Performative:   performative,
	}
}

// Reply builds a reply to msg: the conversation id is preserved, sender and
// recipient are swapped, and the body is cleared so the caller must fill it
// again via the content manager.
func (m *Message) Reply(performative Performative) *Message {
	return &Message{
		Sender:         m.Recipient,
		Recipient:      m.Sender,
		ConversationID: m.ConversationID,
		ReplyTo:        m.ConversationID,
		Performative:   performative,
		Protocol:       m.Protocol,
	}
}
