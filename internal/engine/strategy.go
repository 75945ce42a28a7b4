package engine

import (
	"fmt"

	"github.com/hanpama/pathway/internal/config"
)

// Strategy selects how a compiled path executes.
type Strategy uint8

const (
	// Adaptive starts interpreted and promotes hot call sites.
	Adaptive Strategy = iota
	// Interpreted always resolves members reflectively.
	Interpreted
	// Compiled specializes up front and fails for chains it cannot compile.
	Compiled
)

var strategyNames = [...]string{
	Adaptive:    config.StrategyAdaptive,
	Interpreted: config.StrategyInterpreted,
	Compiled:    config.StrategyCompiled,
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// ParseStrategy returns the strategy called name.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}
