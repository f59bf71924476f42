package domain

// EndpointShape classifies a captured structured response.
type EndpointShape string

const (
	ShapeFilingList EndpointShape = "filing_list"
	ShapeOther      EndpointShape = "other"
)

// DiscoveredEndpoint is a structured response observed during one discovery session.
type DiscoveredEndpoint struct {
	URL         string
	Method      string
	StatusCode  int
	ContentType string
	Shape       EndpointShape
	Confidence  float64
	Body        []byte
}

// FilingLike reports whether the endpoint was classified as a filing listing.
func (e DiscoveredEndpoint) FilingLike() bool {
	return e.Shape == ShapeFilingList
}

// Cookie is a browser session cookie handed to the direct fetch client.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// DiscoveryResult is the outcome of a discovery session; it is never an error.
type DiscoveryResult struct {
	Success      bool
	Endpoints    []DiscoveredEndpoint
	Cookies      []Cookie
	RenderedHTML string
	PageURL      string
}

// FilingEndpoints returns only the endpoints classified as filing listings.
func (r DiscoveryResult) FilingEndpoints() []DiscoveredEndpoint {
	var out []DiscoveredEndpoint
	for _, ep := range r.Endpoints {
		if ep.FilingLike() {
			out = append(out, ep)
		}
	}
	return out
}
