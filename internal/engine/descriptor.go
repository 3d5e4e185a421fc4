package engine

import (
	"slices"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/connector"
	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/value"
)

// Endpoint is one side of a binding. Adapter is nil when Kind is
// value.KindScope; Path[0] is then the slot id.
type Endpoint struct {
	Name    string
	Kind    value.Kind
	Adapter value.Adapter
	Path    value.Path
}

func (e Endpoint) String() string {
	if len(e.Path) == 0 {
		return e.Name
	}
	return e.Name + ":" + e.Path.String()
}

// Descriptor is a resolved binding: exactly one source, one sink, and the
// connector chain in source-to-sink order.
type Descriptor struct {
	Source     Endpoint
	Connectors []connector.Connector
	Sink       Endpoint

	// Element is the view element of the scope that declared the binding.
	Element *dom.Node

	// Binding is the declaration this descriptor was built from.
	Binding ast.Binding

	retired bool
}

// describe resolves b into a Descriptor. The "<-" operator swaps source and
// sink and reverses the connector chain.
func (b *Binding) describe(decl ast.Binding, element *dom.Node) (*Descriptor, error) {
	if err := decl.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeStructure, Message: "invalid binding", Err: err}
	}

	srcVar, sinkVar := decl.Left, decl.Right
	names := slices.Clone(decl.Connectors)
	if decl.Op == ast.OpLeft {
		srcVar, sinkVar = sinkVar, srcVar
		slices.Reverse(names)
	}

	source, err := b.endpoint(srcVar)
	if err != nil {
		return nil, err
	}
	sink, err := b.endpoint(sinkVar)
	if err != nil {
		return nil, err
	}

	chain := make([]connector.Connector, 0, len(names))
	for _, name := range names {
		c, ok := b.registry.Connector(name)
		if !ok {
			return nil, structureError("binding %s: unknown connector %q", decl, name)
		}
		chain = append(chain, c)
	}

	return &Descriptor{
		Source:     source,
		Connectors: chain,
		Sink:       sink,
		Element:    element,
		Binding:    decl,
	}, nil
}

// endpoint resolves a variable. The endpoint name is the namespace if there
// is one, addressed at [id, path...]; otherwise it is the id, addressed at
// the path alone.
func (b *Binding) endpoint(v ast.Variable) (Endpoint, error) {
	var ep Endpoint
	if v.NS != "" {
		ep.Name = v.NS
		ep.Path = append(value.Path{v.ID}, v.Path...)
	} else {
		ep.Name = v.ID
		ep.Path = append(value.Path{}, v.Path...)
	}

	if ep.Name == b.prefix {
		if len(ep.Path) == 0 || ep.Path[0] == "" {
			return Endpoint{}, structureError("scope variable %s has no slot id", v)
		}
		ep.Kind = value.KindScope
		return ep, nil
	}

	a, ok := b.registry.Adapter(ep.Name)
	if !ok {
		return Endpoint{}, structureError("unknown adapter %q in %s", ep.Name, v)
	}
	if err := value.CheckAdapterKind(a.Kind()); err != nil {
		return Endpoint{}, &Error{Code: ErrCodeUnknownAdapter, ID: ep.Name, Message: "unknown adapter type", Err: err}
	}
	ep.Kind = a.Kind()
	ep.Adapter = a
	return ep, nil
}

// context returns the adapter context for an endpoint of d.
func (b *Binding) context(d *Descriptor, ep Endpoint) (any, error) {
	switch ep.Kind {
	case value.KindView:
		return d.Element, nil
	case value.KindModel:
		return b.model, nil
	default:
		return nil, &Error{Code: ErrCodeUnknownAdapter, ID: ep.Name, Message: "unknown adapter type", Err: &value.UnknownKindError{Kind: ep.Kind}}
	}
}
