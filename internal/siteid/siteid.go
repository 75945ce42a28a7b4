package siteid

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Site identifies one call site: a path compiled at a position of some
// expression text.
type Site struct {
	ID     uuid.UUID
	Path   string
	Start  int
	Offset int
}

// New returns a Site with a fresh random ID.
func New(path string, start, offset int) Site {
	return Site{ID: uuid.New(), Path: path, Start: start, Offset: offset}
}

func (s Site) String() string {
	return fmt.Sprintf("%s@%d+%d", s.Path, s.Start, s.Offset)
}

// key is the context key for the call site.
type key struct{}

// NewContext returns a copy of parent carrying s.
func NewContext(parent context.Context, s Site) context.Context {
	return context.WithValue(parent, key{}, s)
}

// FromContext extracts the call site from ctx.
// It returns the site and whether it was present.
func FromContext(ctx context.Context) (Site, bool) {
	s, ok := ctx.Value(key{}).(Site)
	return s, ok
}
