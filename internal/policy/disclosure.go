package policy

import (
	"fmt"

	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/pkg/abepolicy"
)

// BuildDisclosurePolicy returns the encryption policy for a new reading:
// the base clause requires role and department, and each approved grant adds
// an OR-clause on its consent token.
//
//	(Role:Doctor AND Dept:Cardiology) OR Consent:CONSENT_ab12cd34
func BuildDisclosurePolicy(baseRole, baseDept string, grants []*consent.Grant) (abepolicy.Node, error) {
	role, err := abepolicy.NewAttr("Role", baseRole)
	if err != nil {
		return nil, fmt.Errorf("base role: %w", err)
	}
	dept, err := abepolicy.NewAttr("Dept", baseDept)
	if err != nil {
		return nil, fmt.Errorf("base department: %w", err)
	}

	clauses := []abepolicy.Node{abepolicy.And(role, dept)}
	for _, g := range grants {
		if g.Status != consent.StatusApproved {
			continue
		}
		tok, err := abepolicy.NewAttr("Consent", g.PolicyToken)
		if err != nil {
			return nil, fmt.Errorf("consent %s: %w", g.ID, err)
		}
		clauses = append(clauses, tok)
	}
	return abepolicy.Or(clauses...), nil
}
