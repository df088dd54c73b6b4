package redteam

import "time"

// Debate verdicts
const (
	VerdictApproved = "approved"
	VerdictRejected = "rejected"
)

// Debate is the outcome of a structured exchange between the proposing
// architect and the adversarial screen. Challenges are the checks the
// candidate failed, concessions the ones it survived.
type Debate struct {
	Timestamp   time.Time `json:"timestamp"`
	Position    string    `json:"architect_position"`
	Challenges  []string  `json:"adversary_challenges"`
	Concessions []string  `json:"adversary_concessions"`
	Verdict     string    `json:"final_verdict"`
	Report      Report    `json:"audit_details"`
}

// DebateProtocol pits the architect's stated reasoning against the full
// screen and returns the structured outcome
func (s *Screen) DebateProtocol(source []byte, position string) Debate {
	approved, report := s.Evaluate(source, map[string]any{"reasoning": position})
	verdict := VerdictRejected
	if approved {
		verdict = VerdictApproved
	}
	return Debate{
		Timestamp:   s.now(),
		Position:    position,
		Challenges:  report.TestsFailed,
		Concessions: report.TestsPassed,
		Verdict:     verdict,
		Report:      report,
	}
}
