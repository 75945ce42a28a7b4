package accessor

import (
	"reflect"

	"github.com/hanpama/pathway/internal/scope"
)

// PropertyHandler overrides the default property behavior for a type. It is
// consulted before reflection by both strategies.
type PropertyHandler interface {
	GetProperty(name string, target any, s *scope.Scope) (any, error)
	SetProperty(name string, target any, s *scope.Scope, value any) (any, error)
}

// PropertyBinder is implemented by handlers that can resolve a property once
// per concrete type. The compiled strategy uses the binding instead of calling
// GetProperty/SetProperty with the name on every call.
type PropertyBinder interface {
	BindProperty(t reflect.Type, name string) (PropertyBinding, bool)
}

// PropertyBinding is a property resolved for one type. Implementations must
// behave exactly like the handler's GetProperty/SetProperty for that name.
type PropertyBinding interface {
	Get(target any) (any, error)
	Set(target any, value any) (any, error)
	// Type is the declared property type, or nil.
	Type() reflect.Type
}

// NoSpecialization is implemented by handlers that opt out of the compiled
// strategy. A chain whose declared input type is served by such a handler is
// declined.
type NoSpecialization interface {
	NoSpecialization()
}

// HandlerLookup finds the property handler for a type.
type HandlerLookup interface {
	Lookup(t reflect.Type) PropertyHandler
}
