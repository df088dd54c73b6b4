package guardrails

import (
	"fmt"

	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

// AuditDocument runs the two-stage static audit on a candidate
// decision document. Stage one checks the document parses at all,
// stage two checks it validates and compiles into a runnable program.
// A nil error means the candidate is safe to deploy.
func AuditDocument(source []byte) error {
	doc, err := strategy.Parse(source)
	if err != nil {
		return fmt.Errorf("Syntax audit failed: %w", err)
	}

	if err := strategy.Migrate(doc); err != nil {
		return fmt.Errorf("Logic audit failed: %w", err)
	}
	if _, err := doc.Compile(); err != nil {
		return fmt.Errorf("Logic audit failed: %w", err)
	}
	return nil
}
