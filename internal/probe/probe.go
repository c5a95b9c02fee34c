// Package probe implements the readiness checks that can gate the test
// runner on the application server being reachable.
package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Paintersrp/rune2e/internal/config"
)

// Prober performs a single readiness check.
type Prober interface {
	Probe(ctx context.Context) error
}

// New constructs a Prober for the supplied readiness specification. When more
// than one kind of probe is configured the server counts as ready as soon as
// any of them succeeds.
func New(spec *config.ReadinessSpec) (Prober, error) {
	if spec == nil {
		return nil, errors.New("probe: missing configuration")
	}

	var terms []probeTerm
	if spec.HTTP != nil {
		terms = append(terms, probeTerm{alias: "http", probe: newHTTPCheck(spec.HTTP)})
	}
	if spec.TCP != nil {
		terms = append(terms, probeTerm{alias: "tcp", probe: newTCPCheck(spec.TCP)})
	}
	if spec.Command != nil {
		check, err := newCommandCheck(spec.Command)
		if err != nil {
			return nil, err
		}
		terms = append(terms, probeTerm{alias: "cmd", probe: check})
	}

	switch len(terms) {
	case 0:
		return nil, errors.New("probe: missing configuration")
	case 1:
		return terms[0].probe, nil
	default:
		return &multiProber{terms: terms}, nil
	}
}

type multiProber struct {
	terms []probeTerm
}

type probeTerm struct {
	alias string
	probe Prober
}

func (m *multiProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		alias string
		err   error
	}

	results := make(chan result, len(m.terms))
	for _, term := range m.terms {
		go func(alias string, prober Prober) {
			results <- result{alias: alias, err: prober.Probe(ctx)}
		}(term.alias, term.probe)
	}

	var errs []error
	for i := 0; i < len(m.terms); i++ {
		res := <-results
		if res.err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", res.alias, res.err))
	}
	return errors.Join(errs...)
}
