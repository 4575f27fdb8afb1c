package relevance

import "teamdigest/internal/core"

// Pre-configured role profiles used for topic weighting

const (
	// BaseWeight is the starting weight of every message
	BaseWeight = 1.0
	// RoleBonus is added for every matching role rule
	RoleBonus = 2.0
	// ReactionBump is added per reaction, independent of role
	ReactionBump = 0.2
)

// RoleRule grants RoleBonus when a message matches during one of Phases.
// An empty Phases list matches every phase.
type RoleRule struct {
	Name   string
	Phases []core.Phase
	Match  func(core.Message) bool
}

// Applies reports whether the rule fires for msg in phase
func (r RoleRule) Applies(msg core.Message, phase core.Phase) bool {
	if len(r.Phases) > 0 && !containsPhase(r.Phases, phase) {
		return false
	}
	return r.Match(msg)
}

var (
	// buildRules focus hardware engineers on design decisions and blockers while
	// building, and on risks during validation
	buildRules = []RoleRule{
		{
			Name:   "build_decision_or_blocker",
			Phases: []core.Phase{core.PhaseDetailedDesign, core.PhaseProtoBuild},
			Match:  func(m core.Message) bool { return m.IsDecision || m.IsBlocker },
		},
		{
			Name:   "validation_risk",
			Phases: []core.Phase{core.PhaseDVT, core.PhasePVT},
			Match:  func(m core.Message) bool { return m.IsRisk },
		},
	}

	// supplyRules care about anything that can slip a delivery
	supplyRules = []RoleRule{
		{
			Name:  "blocker_or_risk",
			Match: func(m core.Message) bool { return m.IsBlocker || m.IsRisk },
		},
	}

	// managementRules track every flagged message
	managementRules = []RoleRule{
		{
			Name:  "any_flag",
			Match: func(m core.Message) bool { return m.IsDecision || m.IsRisk || m.IsBlocker },
		},
	}

	// RoleProfiles maps each role to its rules
	RoleProfiles = map[core.Role][]RoleRule{
		core.RoleME:  buildRules,
		core.RoleEE:  buildRules,
		core.RoleSCM: supplyRules,
		core.RoleEM:  managementRules,
		core.RolePM:  managementRules,
	}
)

// RoleTopicWeight is the role and phase sensitive importance of msg. Rules of a
// profile are independent, so more than one may add its bonus.
func RoleTopicWeight(msg core.Message, role core.Role, phase core.Phase) float64 {
	w := BaseWeight
	for _, rule := range RoleProfiles[role] {
		if rule.Applies(msg, phase) {
			w += RoleBonus
		}
	}
	return w + ReactionBump*float64(len(msg.Reactions))
}

func containsPhase(phases []core.Phase, p core.Phase) bool {
	for _, ph := range phases {
		if ph == p {
			return true
		}
	}
	return false
}
