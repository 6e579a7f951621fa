package similarity

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

const bucketPrefix = "bucket-"

// Selector is the parsed form of a model selector string such as "bm25",
// "custom" or "bucket-2.5".
type Selector struct {
	Kind Kind
	Base float64
	Raw  string
}

// ParseSelector maps a selector string onto a model kind. Matching is case
// insensitive. Unrecognized and empty selectors parse to KindUnknown; a
// bucket selector with an unusable base is a configuration error.
func ParseSelector(raw string) (Selector, error) {
	sel := Selector{Raw: raw}
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "bm25":
		sel.Kind = KindBM25
		return sel, nil
	case "class", "classic":
		sel.Kind = KindClassic
		return sel, nil
	case "custom":
		sel.Kind = KindTunableBM25
		return sel, nil
	case "freq":
		sel.Kind = KindRawFreq
		return sel, nil
	}

	value, ok := strings.CutPrefix(name, bucketPrefix)
	if !ok {
		return sel, nil
	}
	sel.Kind = KindStepwise
	if value == "e" {
		sel.Base = math.E
		return sel, nil
	}
	base, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Selector{}, apperrors.Configf(apperrors.ErrInvalidParameter,
			"similarity [%s]: base [%s] is not a number", raw, value)
	}
	if _, err := NewStepwise(base); err != nil {
		return Selector{}, err
	}
	sel.Base = base
	return sel, nil
}

// Observer is notified of selector resolutions, typically to feed metrics.
type Observer interface {
	ModelResolved(kind string)
	ModelFallback()
}

// Resolver turns selectors into models using the configured defaults for
// parameterized kinds.
type Resolver struct {
	fallback Model
	tunable  *TunableBM25
	observer Observer
	logger   *slog.Logger
}

type ResolverOption func(*Resolver)

// WithFallback sets the model used for BM25 and unknown selectors.
func WithFallback(m Model) ResolverOption {
	return func(r *Resolver) { r.fallback = m }
}

// WithTunable sets the model the "custom" selector resolves to.
func WithTunable(m *TunableBM25) ResolverOption {
	return func(r *Resolver) { r.tunable = m }
}

func WithObserver(o Observer) ResolverOption {
	return func(r *Resolver) { r.observer = o }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fallback: DefaultBM25(),
		tunable:  DefaultTunableBM25(),
		logger:   slog.Default().With("component", "similarity-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default returns the model used when a query does not ask for one.
func (r *Resolver) Default() Model {
	return r.fallback
}

// Resolve parses and resolves a selector string.
func (r *Resolver) Resolve(selector string) (Model, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return r.Model(sel), nil
}

// Model builds the model for a parsed selector. KindUnknown resolves to the
// fallback model and is logged.
func (r *Resolver) Model(sel Selector) Model {
	var m Model
	switch sel.Kind {
	case KindBM25:
		m = r.fallback
	case KindClassic:
		m = NewClassic()
	case KindTunableBM25:
		m = r.tunable
	case KindRawFreq:
		m = NewRawFreq()
	case KindStepwise:
		if sel.Base == math.E {
			m = DefaultStepwise()
		} else {
			s, err := NewStepwise(sel.Base)
			if err != nil {
				// ParseSelector already rejected this base.
				r.logger.Error("invalid stepwise base reached resolver", "base", sel.Base, "error", err)
				m = r.fallback
			} else {
				m = s
			}
		}
	default:
		r.logger.Warn("unknown similarity selector, falling back",
			"selector", sel.Raw,
			"fallback", r.fallback.String(),
		)
		if r.observer != nil {
			r.observer.ModelFallback()
		}
		return r.fallback
	}
	if r.observer != nil {
		r.observer.ModelResolved(sel.Kind.String())
	}
	return m
}
