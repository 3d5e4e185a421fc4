package compiler

import (
	"fmt"

	"github.com/roach88/vdb/internal/ast"
	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/registry"
)

// Validation error codes (E100-E199)
const (
	// Binding errors (E100-E109)
	ErrUnknownAdapter   = "E100" // endpoint names no registered adapter
	ErrUnknownConnector = "E101" // connector is not registered
	ErrInvalidOperator  = "E102" // missing or unknown arrow
	ErrEmptyEndpoint    = "E103" // endpoint has neither namespace nor id

	// Region errors (E110-E119)
	ErrNameClash       = "E110" // entry, key, own or source ids collide
	ErrDuplicateSocket = "E111" // socket id declared twice in one region
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled tree against the adapters and connectors of
// reg. Endpoints in namespace prefix address the scope store and need no
// adapter.
// Returns all errors found (does not fail-fast).
func Validate(tree *engine.Node, reg *registry.Registry, prefix string) []ValidationError {
	var errs []ValidationError
	validateNode(tree, "root", reg, prefix, &errs)
	return errs
}

func validateNode(n *engine.Node, where string, reg *registry.Registry, prefix string, errs *[]ValidationError) {
	if n.SourceID != "" {
		validateNames(n, where, errs)
	}

	seen := make(map[string]bool)
	for _, s := range n.Sockets {
		if seen[s.ID] {
			*errs = append(*errs, ValidationError{
				Field:   where + ".sockets",
				Message: fmt.Sprintf("socket %q declared twice", s.ID),
				Code:    ErrDuplicateSocket,
			})
		}
		seen[s.ID] = true
	}

	for _, scope := range n.Spec.All() {
		for _, b := range scope.Bindings {
			validateBinding(b, where, reg, prefix, errs)
		}
	}

	for _, c := range n.Children {
		validateNode(c, fmt.Sprintf("%s/%s", where, c.SourceID), reg, prefix, errs)
	}
}

// validateNames rejects a region whose private names collide with each
// other or with the slot driving it.
func validateNames(n *engine.Node, where string, errs *[]ValidationError) {
	owners := map[string]string{n.SourceID: "source"}
	claim := func(id, role string) {
		if id == "" {
			return
		}
		if prev, ok := owners[id]; ok {
			*errs = append(*errs, ValidationError{
				Field:   where + "." + role,
				Message: fmt.Sprintf("%s id %q is already the %s id", role, id, prev),
				Code:    ErrNameClash,
			})
			return
		}
		owners[id] = role
	}
	claim(n.EntryID, "entry")
	claim(n.KeyID, "key")
	for _, id := range n.Own {
		claim(id, "own")
	}
}

func validateBinding(b ast.Binding, where string, reg *registry.Registry, prefix string, errs *[]ValidationError) {
	field := fmt.Sprintf("%s[%s]", where, b)

	switch b.Op {
	case ast.OpRight, ast.OpLeft:
	default:
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("operator %q must be %q or %q", b.Op, ast.OpRight, ast.OpLeft),
			Code:    ErrInvalidOperator,
		})
	}

	for _, v := range []ast.Variable{b.Left, b.Right} {
		name := v.NS
		if name == "" {
			name = v.ID
		}
		switch {
		case name == "":
			*errs = append(*errs, ValidationError{
				Field:   field,
				Message: "endpoint has neither namespace nor id",
				Code:    ErrEmptyEndpoint,
			})
		case name == prefix:
		default:
			if _, ok := reg.Adapter(name); !ok {
				*errs = append(*errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("no adapter registered as %q (have %v)", name, reg.AdapterNames()),
					Code:    ErrUnknownAdapter,
				})
			}
		}
	}

	for _, c := range b.Connectors {
		if _, ok := reg.Connector(c); !ok {
			*errs = append(*errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("no connector registered as %q", c),
				Code:    ErrUnknownConnector,
			})
		}
	}
}
