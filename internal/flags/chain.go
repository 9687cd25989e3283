package flags

import "errors"

// Chain asks each resolver in order and returns the first non-empty answer.
type Chain struct {
	resolvers []Resolver
}

var _ Resolver = (*Chain)(nil)

// NewChain creates a chain. Nil resolvers are skipped.
func NewChain(resolvers ...Resolver) *Chain {
	c := &Chain{}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Resolve implements Resolver. A failing resolver does not stop the chain;
// its error is only reported when no later resolver has flags.
func (c *Chain) Resolve(filename string) (Result, error) {
	var errs []error
	for _, r := range c.resolvers {
		res, err := r.Resolve(filename)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(res.Flags) > 0 {
			return res, nil
		}
	}
	return Result{}, errors.Join(errs...)
}
