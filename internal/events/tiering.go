package events

import (
	"time"

	"github.com/hanpama/pathway/internal/siteid"
)

// SpecializeStart is emitted before a call site attempts specialization.
type SpecializeStart struct {
	Site        siteid.Site
	Invocations int64
}

// SpecializeFinish is emitted after a specialization attempt completes.
// Declined is set when the compiler refused the chain; the site then stays
// interpreted.
type SpecializeFinish struct {
	Site     siteid.Site
	Declined bool
	Err      error
	Duration time.Duration
}

// Deoptimized is emitted when a compiled call site is reverted.
type Deoptimized struct {
	Site   siteid.Site
	Reason string
}

// RegistryReset is emitted after every live unit has been deoptimized at once.
type RegistryReset struct {
	Units  int
	Reason string
}
