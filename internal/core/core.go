package core

import (
	"strings"
	"time"
)

// Role is a user's engineering function.
type Role string

const (
	RoleME  Role = "ME"  // Mechanical engineering
	RoleEE  Role = "EE"  // Electrical engineering
	RoleSCM Role = "SCM" // Supply chain management
	RoleEM  Role = "EM"  // Engineering management
	RolePM  Role = "PM"  // Program management
)

// Roles lists every valid role in canonical order.
var Roles = []Role{RoleME, RoleEE, RoleSCM, RoleEM, RolePM}

// Phase is a named stage of a project's lifecycle.
type Phase string

const (
	PhaseConcept        Phase = "concept"
	PhaseDetailedDesign Phase = "detailed_design"
	PhaseProtoBuild     Phase = "proto_build"
	PhaseDVT            Phase = "dvt"
	PhasePVT            Phase = "pvt"
	PhaseRamp           Phase = "ramp"
)

// Phases lists every valid phase in lifecycle order.
var Phases = []Phase{PhaseConcept, PhaseDetailedDesign, PhaseProtoBuild, PhaseDVT, PhasePVT, PhaseRamp}

// Title renders the phase for headings: "detailed_design" becomes "Detailed Design".
func (p Phase) Title() string {
	words := strings.Split(string(p), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// User is a chat participant who receives digests.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// ProjectPhase is a phase with an inclusive day range.
type ProjectPhase struct {
	Name     Phase `json:"name"`
	StartDay int   `json:"start_day"`
	EndDay   int   `json:"end_day"`
}

// Contains reports whether day falls inside the phase range.
func (pp ProjectPhase) Contains(day int) bool {
	return pp.StartDay <= day && day <= pp.EndDay
}

// Project groups messages and carries a day-ordered phase schedule.
type Project struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Phases []ProjectPhase `json:"phases"`
}

// PhaseOn returns the first phase whose range contains day. Days past the
// schedule fall back to the last phase.
func (p Project) PhaseOn(day int) Phase {
	for _, ph := range p.Phases {
		if ph.Contains(day) {
			return ph.Name
		}
	}
	if len(p.Phases) == 0 {
		return ""
	}
	return p.Phases[len(p.Phases)-1].Name
}

// Message is a single chat message. Messages are immutable once ingested.
type Message struct {
	ID            string              `json:"id"`
	Timestamp     time.Time           `json:"ts"`
	AuthorID      string              `json:"author_id"`
	ProjectID     string              `json:"project_id"`
	Channel       string              `json:"channel"`
	Text          string              `json:"text"`
	ThreadRootID  string              `json:"thread_root_id,omitempty"` // empty when not in a thread
	Reactions     []string            `json:"reactions"`
	ReactingUsers map[string][]string `json:"reacting_users"` // reaction label -> user IDs
	IsDecision    bool                `json:"is_decision"`
	IsRisk        bool                `json:"is_risk"`
	IsBlocker     bool                `json:"is_blocker"`
	Mentions      []string            `json:"mentions"`
	ReplyCount    int                 `json:"reply_count"`
	Replies       []Message           `json:"replies"` // direct replies
}

// InThread reports whether the message belongs to a thread.
func (m Message) InThread() bool {
	return m.ThreadRootID != ""
}

// RepliedBy reports whether userID authored one of the direct replies.
func (m Message) RepliedBy(userID string) bool {
	for _, r := range m.Replies {
		if r.AuthorID == userID {
			return true
		}
	}
	return false
}

// ReactedBy reports whether userID appears in any reaction's reactor list.
func (m Message) ReactedBy(userID string) bool {
	for _, reactors := range m.ReactingUsers {
		for _, id := range reactors {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// Tags returns the upper-case flag labels set on the message.
func (m Message) Tags() []string {
	var tags []string
	if m.IsDecision {
		tags = append(tags, "DECISION")
	}
	if m.IsRisk {
		tags = append(tags, "RISK")
	}
	if m.IsBlocker {
		tags = append(tags, "BLOCKER")
	}
	return tags
}

// UserFocus lists the projects a user tracks on a given day.
type UserFocus struct {
	UserID     string   `json:"user_id"`
	Day        int      `json:"day"`
	ProjectIDs []string `json:"project_ids"`
}

// Includes reports whether projectID is in focus.
func (f UserFocus) Includes(projectID string) bool {
	for _, id := range f.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// FocusKey identifies a focus record.
type FocusKey struct {
	UserID string
	Day    int
}

// FocusIndex looks up focus records by (user, day).
type FocusIndex map[FocusKey]UserFocus

// BuildFocusIndex indexes focus records. Later records for the same key win.
func BuildFocusIndex(focus []UserFocus) FocusIndex {
	idx := make(FocusIndex, len(focus))
	for _, f := range focus {
		idx[FocusKey{UserID: f.UserID, Day: f.Day}] = f
	}
	return idx
}

// Lookup returns the focus for (userID, day).
func (idx FocusIndex) Lookup(userID string, day int) (UserFocus, bool) {
	f, ok := idx[FocusKey{UserID: userID, Day: day}]
	return f, ok
}

// Digest is the output of one digest run for one user and day.
type Digest struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Day            int       `json:"day"`
	Text           string    `json:"text"`
	Source         string    `json:"source"`                    // "llm", "fallback" or "placeholder"
	FallbackReason string    `json:"fallback_reason,omitempty"` // why the LLM text was not used
	MessageIDs     []string  `json:"message_ids"`               // ranked candidates handed to the generator
	GeneratedAt    time.Time `json:"generated_at"`
}
