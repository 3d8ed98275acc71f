package ontology

// ServiceDescription carries the free-form property bag a directory
// facilitator search matches against.
type ServiceDescription struct {
	Properties map[string]string `json:"properties"`
}

// Key implements ContentElement.
func (ServiceDescription) Key() string { return "service-description" }

// DFAgentDescription is the registration record an agent files with the
// directory facilitator: its endpoint, the interaction protocol and
// ontology/language it speaks, and the service it advertises.
type DFAgentDescription struct {
	AgentName           string             `json:"agentName"`
	InteractionProtocol string             `json:"interactionProtocol"`
	Ontology            string             `json:"ontology"`
	Language            string             `json:"language"`
	Service             ServiceDescription `json:"service"`
}

// Key implements ContentElement.
func (DFAgentDescription) Key() string { return "df-agent-description" }

func buildDFAgentDescription(fields map[string]any) (DFAgentDescription, error) {
	var d DFAgentDescription
	d.AgentName, _ = fieldString(fields, "agentName")
	d.InteractionProtocol, _ = fieldString(fields, "interactionProtocol")
	d.Ontology, _ = fieldString(fields, "ontology")
	d.Language, _ = fieldString(fields, "language")
	if svc, ok := fieldMap(fields, "service"); ok {
		props := make(map[string]string, len(svc))
		if raw, ok := fieldMap(svc, "properties"); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					props[k] = s
				}
			}
		}
		d.Service = ServiceDescription{Properties: props}
	}
	return d, nil
}

// RegisterServiceRequest asks the directory facilitator to file a
// DFAgentDescription.
type RegisterServiceRequest struct {
	Request DFAgentDescription `json:"request"`
}

// Key implements ContentElement.
func (RegisterServiceRequest) Key() string { return "register-service-request" }

// DeregisterServiceRequest asks the directory facilitator to remove a
// previously filed DFAgentDescription. Matching also checks ontology,
// language, and interaction protocol, unlike search.
type DeregisterServiceRequest struct {
	Request DFAgentDescription `json:"request"`
}

// Key implements ContentElement.
func (DeregisterServiceRequest) Key() string { return "deregister-service-request" }

// SearchServiceRequest asks the directory facilitator for every filed
// description matching a template. Only agentName and the service property
// bag participate in the match; ontology, language, and protocol on the
// template are ignored.
type SearchServiceRequest struct {
	Request DFAgentDescription `json:"request"`
}

// Key implements ContentElement.
func (SearchServiceRequest) Key() string { return "search-service-request" }

// SearchServiceResponse carries every matching DFAgentDescription, possibly
// empty.
type SearchServiceResponse struct {
	List []DFAgentDescription `json:"list"`
}

// Key implements ContentElement.
func (SearchServiceResponse) Key() string { return "search-service-response" }

// DF is the directory-facilitator ontology.
var DF = buildDFOntology()

func buildDFOntology() *Ontology {
	o := New("DFOntology")
	o.Add("register-service-request", func(fields map[string]any) (ContentElement, error) {
		req, _ := fieldMap(fields, "request")
		d, _ := buildDFAgentDescription(req)
		return RegisterServiceRequest{Request: d}, nil
	})
	o.Add("deregister-service-request", func(fields map[string]any) (ContentElement, error) {
		req, _ := fieldMap(fields, "request")
		d, _ := buildDFAgentDescription(req)
		return DeregisterServiceRequest{Request: d}, nil
	})
	o.Add("search-service-request", func(fields map[string]any) (ContentElement, error) {
		req, _ := fieldMap(fields, "request")
		d, _ := buildDFAgentDescription(req)
		return SearchServiceRequest{Request: d}, nil
	})
	o.Add("search-service-response", func(fields map[string]any) (ContentElement, error) {
		raw, ok := fields["list"].([]any)
		if !ok {
			return SearchServiceResponse{}, nil
		}
		list := make([]DFAgentDescription, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			d, _ := buildDFAgentDescription(m)
			list = append(list, d)
		}
		return SearchServiceResponse{List: list}, nil
	})
	return o
}
