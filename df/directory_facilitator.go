// Package df implements the directory facilitator: the single yellow-pages
// agent slots and containers register with and search against to find each
// other's JIDs.
package df

import (
	"context"
	"sync"

	"github.com/portstack/yardctl/acl"
	"github.com/portstack/yardctl/agent"
	"github.com/portstack/yardctl/logging"
	"github.com/portstack/yardctl/observability"
	"github.com/portstack/yardctl/ontology"
	"github.com/portstack/yardctl/transport"
)

// DirectoryFacilitator files DFAgentDescription registrations and answers
// search/deregister requests against them. One goroutine, one registry,
// guarded by a single mutex: registrations are rare compared to searches
// and auctions, so no finer-grained locking is warranted.
type DirectoryFacilitator struct {
	base           *agent.Base
	contentManager *ontology.ContentManager

	mu       sync.Mutex
	services []ontology.DFAgentDescription
}

// New creates a directory facilitator bound to jid on bus.
func New(bus transport.Bus, jid acl.Endpoint, logger logging.Logger) (*DirectoryFacilitator, error) {
	base, err := agent.NewBase(bus, jid, logger)
	if err != nil {
		return nil, err
	}
	cm := ontology.NewContentManager()
	cm.Register(ontology.DF)
	return &DirectoryFacilitator{base: base, contentManager: cm}, nil
}

// Run processes requests until ctx is cancelled.
func (d *DirectoryFacilitator) Run(ctx context.Context) error {
	for {
		msg, err := d.base.Receive(ctx)
		if err != nil {
			return err
		}
		d.handle(ctx, msg)
	}
}

func (d *DirectoryFacilitator) handle(ctx context.Context, msg *acl.Message) {
	element, err := d.contentManager.Extract(msg)
	if err != nil {
		d.base.Logger.Warn("df_malformed_request", "sender", string(msg.Sender), "error", err.Error())
		_ = d.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}

	switch request := element.(type) {
	case ontology.RegisterServiceRequest:
		d.handleRegister(ctx, msg, request)
	case ontology.SearchServiceRequest:
		d.handleSearch(ctx, msg, request)
	case ontology.DeregisterServiceRequest:
		d.handleDeregister(ctx, msg, request)
	default:
		_ = d.base.Send(ctx, msg.Reply(acl.NOT_UNDERSTOOD))
	}
}

func (d *DirectoryFacilitator) handleRegister(ctx context.Context, msg *acl.Message, req ontology.RegisterServiceRequest) {
	d.mu.Lock()
	d.services = append(d.services, req.Request)
	count := len(d.services)
	d.mu.Unlock()

	observability.SetDFRegistryEntries(count)
	_ = d.base.Send(ctx, msg.Reply(acl.INFORM))
}

func (d *DirectoryFacilitator) handleDeregister(ctx context.Context, msg *acl.Message, req ontology.DeregisterServiceRequest) {
	d.mu.Lock()
	kept := d.services[:0]
	for _, item := range d.services {
		if !deregisterMatches(item, req.Request) {
			kept = append(kept, item)
		}
	}
	d.services = kept
	count := len(d.services)
	d.mu.Unlock()

	observability.SetDFRegistryEntries(count)
	_ = d.base.Send(ctx, msg.Reply(acl.INFORM))
}

func (d *DirectoryFacilitator) handleSearch(ctx context.Context, msg *acl.Message, req ontology.SearchServiceRequest) {
	d.mu.Lock()
	var matches []ontology.DFAgentDescription
	for _, item := range d.services {
		if searchMatches(item, req.Request) {
			matches = append(matches, item)
		}
	}
	d.mu.Unlock()

	if len(matches) > 0 {
		observability.RecordDFSearch("hit")
	} else {
		observability.RecordDFSearch("miss")
	}

	reply := msg.Reply(acl.INFORM)
	if err := d.contentManager.Fill(ontology.DF.Name(), reply, ontology.SearchServiceResponse{List: matches}); err != nil {
		_ = d.base.Send(ctx, msg.Reply(acl.FAILURE))
		return
	}
	_ = d.base.Send(ctx, reply)
}

// searchMatches implements the asymmetric matcher: only agentName and the
// service property bag participate. A template service bag's keys must all
// be present in item's bag with equal values; an absent template service bag
// never matches, even against an item advertising no properties.
func searchMatches(item, template ontology.DFAgentDescription) bool {
	if template.AgentName != "" && item.AgentName != template.AgentName {
		return false
	}
	return propertiesMatch(item.Service.Properties, template.Service.Properties)
}

// deregisterMatches additionally checks ontology, language, and interaction
// protocol against the template when those fields are set.
func deregisterMatches(item, template ontology.DFAgentDescription) bool {
	if template.AgentName != "" && item.AgentName != template.AgentName {
		return false
	}
	if template.Ontology != "" && item.Ontology != template.Ontology {
		return false
	}
	if template.Language != "" && item.Language != template.Language {
		return false
	}
	if template.InteractionProtocol != "" && item.InteractionProtocol != template.InteractionProtocol {
		return false
	}
	return propertiesMatch(item.Service.Properties, template.Service.Properties)
}

func propertiesMatch(item, template map[string]string) bool {
	if template == nil {
		return false
	}
	for k, v := range template {
		if itemVal, ok := item[k]; !ok || itemVal != v {
			return false
		}
	}
	return true
}
