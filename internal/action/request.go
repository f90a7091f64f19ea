package action

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is a structured description of a proposed side-effectful
// operation submitted to the Safety Guardian. Risk is always monotone:
// constructing a Request with details that carry a higher MinRisk than
// the caller-supplied level elevates it automatically.
type Request struct {
	ID          string
	Tool        string
	Risk        RiskLevel
	Description string
	Details     Details
}

// New constructs an ActionRequest, enforcing the risk-monotonicity
// invariant: the effective risk is at least details.MinRisk(). A panic
// here would be a programmer error (empty description), not a runtime
// condition, so New returns an error instead of silently accepting it —
// description is never empty per the data model invariant.
func New(tool string, risk RiskLevel, description string, details Details) (*Request, error) {
	if description == "" {
		return nil, fmt.Errorf("action: description must not be empty (tool=%s)", tool)
	}
	effective := risk
	if details != nil {
		effective = Max(risk, details.MinRisk())
	}
	return &Request{
		ID:          uuid.NewString(),
		Tool:        tool,
		Risk:        effective,
		Description: description,
		Details:     details,
	}, nil
}
