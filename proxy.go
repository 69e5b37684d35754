package rpckit

import (
	"context"
	"strings"

	"github.com/tomtom215/rpckit/subscription"
)

// Proxy is a contract-driven path accumulator over a Client. Go has no
// runtime dynamic-property trap, so where a dynamically-typed client would
// build its path by property access (client.user.get(...)), Proxy builds
// it by chained Path calls: client.Proxy().Path("user").Path("get").
type Proxy struct {
	client   *Client
	segments []string
}

// Proxy returns the root of c's contract-driven path accumulator.
func (c *Client) Proxy() *Proxy {
	return &Proxy{client: c}
}

// Path descends one segment deeper, returning a new Proxy; the receiver is
// never mutated, so a Proxy can be reused as a prefix for multiple leaves.
func (p *Proxy) Path(segment string) *Proxy {
	next := make([]string, len(p.segments), len(p.segments)+1)
	copy(next, p.segments)
	next = append(next, segment)
	return &Proxy{client: p.client, segments: next}
}

// String returns the dotted procedure path accumulated so far.
func (p *Proxy) String() string {
	return strings.Join(p.segments, ".")
}

// Query dispatches the accumulated path as a query.
func (p *Proxy) Query(ctx context.Context, input any) (any, error) {
	return p.client.Query(ctx, p.String(), input)
}

// Mutate dispatches the accumulated path as a mutation.
func (p *Proxy) Mutate(ctx context.Context, input any) (any, error) {
	return p.client.Mutate(ctx, p.String(), input)
}

// Subscribe opens the accumulated path as a subscription.
func (p *Proxy) Subscribe(ctx context.Context, input any) (*subscription.Handle, error) {
	return p.client.Subscribe(ctx, p.String(), input)
}
