package monitor

import (
	"strings"
	"time"
)

// Fixed signal sources. Web reachability signals use their URL as source.
const (
	SourceAPI       = "getMe"
	SourceCheckHost = "check-host"
)

// Signal is one probe's verdict for a single tick.
type Signal struct {
	Source  string
	Problem bool
	// Detail and Latency are diagnostic only and never read by the decision logic.
	Detail  string
	Latency time.Duration
}

// ShouldAlert is the instantaneous alert test for one tick.
//
// A failed API liveness probe alerts on its own. A failed multi-vantage
// probe alerts only when at least one web reachability signal (a source
// containing webMatch) also reports a problem.
func ShouldAlert(signals []Signal, webMatch string) bool {
	apiOK := true
	multiFail := false
	webFails := 0

	for _, s := range signals {
		if !s.Problem {
			continue
		}
		switch {
		case s.Source == SourceAPI:
			apiOK = false
		case s.Source == SourceCheckHost:
			multiFail = true
		case webMatch != "" && strings.Contains(s.Source, webMatch):
			webFails++
		}
	}

	return !apiOK || (multiFail && webFails > 0)
}
