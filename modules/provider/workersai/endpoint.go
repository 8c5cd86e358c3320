package workersai

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/flemzord/wai/internal/provider"
)

// Hostnames that select a topology.
const (
	directHost  = "api.cloudflare.com"
	gatewayHost = "gateway.ai.cloudflare.com"
)

// Topology is the deployment shape of a base URL.
type Topology int

// Topology values.
const (
	TopologyUnsupported Topology = iota
	TopologyDirect
	TopologyGateway
)

func (t Topology) String() string {
	switch t {
	case TopologyDirect:
		return "direct"
	case TopologyGateway:
		return "gateway"
	default:
		return "unsupported"
	}
}

// Operation is the remote endpoint a request targets.
type Operation string

// Operation values, spelled as their path suffix.
const (
	OperationRun          Operation = "run"
	OperationModelsSearch Operation = "models/search"
)

// DetectTopology selects the topology from a hostname. The comparison
// ignores case and any port.
func DetectTopology(host string) Topology {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch strings.ToLower(host) {
	case directHost:
		return TopologyDirect
	case gatewayHost:
		return TopologyGateway
	default:
		return TopologyUnsupported
	}
}

// prefix returns how many leading path segments of the base URL the
// topology keeps, and the segment inserted after them.
func (t Topology) prefix() (keep int, insert string) {
	switch t {
	case TopologyDirect:
		// /client/v4/accounts/{account}/ai
		return 5, ""
	case TopologyGateway:
		// /v1/{account}/{gateway}
		return 3, "workers-ai"
	default:
		return 0, ""
	}
}

// ResolveEndpoint maps a base URL and an operation to the exact address to
// call. It does no I/O. Query and fragment of baseURL are dropped. Base URLs
// with fewer path segments than the topology keeps are used as they are.
func ResolveEndpoint(baseURL string, op Operation) (string, Topology, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", TopologyUnsupported, &provider.Error{
			Kind: provider.ErrConfiguration,
			Op:   "workersai: resolving endpoint",
			Err:  err,
		}
	}

	topology := DetectTopology(u.Hostname())
	if topology == TopologyUnsupported {
		return "", topology, &provider.Error{
			Kind: provider.ErrConfiguration,
			Op:   "workersai: resolving endpoint",
			Err:  fmt.Errorf("unsupported host %q, want %s or %s", u.Hostname(), directHost, gatewayHost),
		}
	}

	keep, insert := topology.prefix()
	segments := splitPath(u.EscapedPath())
	if len(segments) > keep {
		segments = segments[:keep]
	}
	if insert != "" {
		segments = append(segments, insert)
	}
	segments = append(segments, string(op))

	return u.Scheme + "://" + u.Host + "/" + strings.Join(segments, "/"), topology, nil
}

// splitPath returns the non-empty segments of an escaped URL path.
func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	segments := parts[:0]
	for _, s := range parts {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
