package scope

import "fmt"

// UnresolvableVariableError reports a name that no scope in the chain owns.
type UnresolvableVariableError struct {
	Name string
}

func (e *UnresolvableVariableError) Error() string {
	return fmt.Sprintf("unresolvable variable: %s", e.Name)
}
