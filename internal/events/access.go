package events

// PropertyGet is emitted before a listened property is read.
type PropertyGet struct {
	Name   string
	Target any
}

// PropertySet is emitted before a listened property is written.
type PropertySet struct {
	Name   string
	Target any
	Value  any
}
