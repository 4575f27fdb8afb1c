// Package fakedata generates a deterministic synthetic workspace: users,
// projects with phase schedules, chat messages and daily focus records.
package fakedata

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"teamdigest/internal/core"
)

// DefaultBase is the timestamp of day 0, 09:00
var DefaultBase = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// Config sizes the generated workspace
type Config struct {
	Seed           int64
	Days           int
	MessagesPerDay int
	Base           time.Time
	ThreadRate     float64 // share of messages that start a thread with replies
	ReactionRate   float64 // share of messages that get extra thumbsup reactors
}

// DefaultConfig returns a 30 day workspace with 80 messages a day
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		Days:           30,
		MessagesPerDay: 80,
		Base:           DefaultBase,
		ThreadRate:     0.1,
		ReactionRate:   0.1,
	}
}

// Dataset is a generated workspace
type Dataset struct {
	Users    []core.User
	Projects []core.Project
	Messages []core.Message
	Focus    []core.UserFocus
}

var names = []string{"Alice", "Bob", "Carol", "Dan", "Eve", "Frank", "Grace", "Heidi", "Ivan", "Judy"}

var (
	decisions = []string{
		"DECISION: switch bearing supplier due to lead time risk.",
		"DECISION: increase motor torque margin by 10%.",
		"DECISION: freeze mechanical interface for elbow joint.",
	}
	risks = []string{
		"RISK: proto build might slip due to PCB re-spin.",
		"RISK: yield below target for first DVT build.",
	}
	blockers = []string{
		"BLOCKER: test lab access blocked, awaiting safety approval.",
		"BLOCKER: missing critical part, awaiting SCM update.",
	}
	generics = []string{
		"Synced on latest test results and next steps.",
		"Updated CAD for mounting bracket, ready for review.",
		"Reviewed firmware bring-up log, no new issues found.",
	}
	replies = []string{
		"Agreed, let's track it in the build review.",
		"Can we get data before the next sync?",
		"Looping in supply chain on this.",
	}
)

// Users returns ten users with roles cycling ME, EE, SCM, EM, PM
func Users() []core.User {
	users := make([]core.User, len(names))
	for i, name := range names {
		users[i] = core.User{
			ID:   fmt.Sprintf("U%d", i),
			Name: name,
			Role: core.Roles[i%len(core.Roles)],
		}
	}
	return users
}

// Projects returns two robotics projects with overlapping phase schedules
func Projects() []core.Project {
	return []core.Project{
		{
			ID:   "P1",
			Name: "Robot Arm",
			Phases: []core.ProjectPhase{
				{Name: core.PhaseConcept, StartDay: 0, EndDay: 4},
				{Name: core.PhaseDetailedDesign, StartDay: 5, EndDay: 14},
				{Name: core.PhaseProtoBuild, StartDay: 15, EndDay: 24},
				{Name: core.PhaseDVT, StartDay: 25, EndDay: 29},
			},
		},
		{
			ID:   "P2",
			Name: "Mobile Base",
			Phases: []core.ProjectPhase{
				{Name: core.PhaseConcept, StartDay: 10, EndDay: 14},
				{Name: core.PhaseDetailedDesign, StartDay: 15, EndDay: 19},
				{Name: core.PhaseProtoBuild, StartDay: 20, EndDay: 29},
			},
		},
	}
}

// Focus assigns every user P1 before day 10, both projects until day 20 and
// P2 afterwards
func Focus(users []core.User, days int) []core.UserFocus {
	focus := make([]core.UserFocus, 0, days*len(users))
	for day := 0; day < days; day++ {
		var projects []string
		switch {
		case day < 10:
			projects = []string{"P1"}
		case day < 20:
			projects = []string{"P1", "P2"}
		default:
			projects = []string{"P2"}
		}
		for _, u := range users {
			focus = append(focus, core.UserFocus{UserID: u.ID, Day: day, ProjectIDs: projects})
		}
	}
	return focus
}

// Generate builds the full dataset. Identical configs give identical data.
func Generate(cfg Config) Dataset {
	if cfg.Days <= 0 {
		cfg.Days = DefaultConfig().Days
	}
	if cfg.MessagesPerDay <= 0 {
		cfg.MessagesPerDay = DefaultConfig().MessagesPerDay
	}
	if cfg.Base.IsZero() {
		cfg.Base = DefaultBase
	}

	users := Users()
	projects := Projects()
	messages := Messages(cfg, users, projects)
	Enrich(cfg, messages, users)

	return Dataset{
		Users:    users,
		Projects: projects,
		Messages: messages,
		Focus:    Focus(users, cfg.Days),
	}
}

// Messages creates the raw message stream in timestamp order. Flagged
// messages carry thumbsup and fire reactions.
func Messages(cfg Config, users []core.User, projects []core.Project) []core.Message {
	rng := rand.New(rand.NewSource(cfg.Seed))

	msgs := make([]core.Message, 0, cfg.Days*cfg.MessagesPerDay)
	for day := 0; day < cfg.Days; day++ {
		for i := 0; i < cfg.MessagesPerDay; i++ {
			user := users[rng.Intn(len(users))]
			project := projects[rng.Intn(len(projects))]
			phase := project.PhaseOn(day)
			text, isDecision, isRisk, isBlocker := sampleText(rng)

			ts := cfg.Base.Add(time.Duration(day)*24*time.Hour + time.Duration(rng.Intn(8*60+1))*time.Minute)

			var reactions []string
			if isDecision || isRisk || isBlocker {
				reactions = []string{"thumbsup", "fire"}
			}

			msgs = append(msgs, core.Message{
				ID:            fmt.Sprintf("M%d", len(msgs)),
				Timestamp:     ts,
				AuthorID:      user.ID,
				ProjectID:     project.ID,
				Channel:       "#proj-" + strings.ToLower(project.ID),
				Text:          fmt.Sprintf("[%s] %s", strings.ToUpper(string(phase)), text),
				Reactions:     reactions,
				ReactingUsers: map[string][]string{},
				IsDecision:    isDecision,
				IsRisk:        isRisk,
				IsBlocker:     isBlocker,
			})
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs
}

// sampleText picks a template: 15% decisions, 12% risks, 8% blockers, rest generic
func sampleText(rng *rand.Rand) (text string, isDecision, isRisk, isBlocker bool) {
	roll := rng.Float64()
	switch {
	case roll < 0.15:
		return decisions[rng.Intn(len(decisions))], true, false, false
	case roll < 0.27:
		return risks[rng.Intn(len(risks))], false, true, false
	case roll < 0.35:
		return blockers[rng.Intn(len(blockers))], false, false, true
	default:
		return generics[rng.Intn(len(generics))], false, false, false
	}
}

// Enrich adds engagement in a second pass over the finished stream: zero to
// two mentions per message, occasional thumbsup reactors and short threads.
// It draws from its own source so the base stream does not depend on it.
func Enrich(cfg Config, msgs []core.Message, users []core.User) {
	rng := rand.New(rand.NewSource(cfg.Seed + 1))

	for i := range msgs {
		m := &msgs[i]
		others := otherUsers(users, m.AuthorID)

		m.Mentions = sample(rng, others, rng.Intn(3))

		if rng.Float64() < cfg.ReactionRate {
			if m.ReactingUsers == nil {
				m.ReactingUsers = map[string][]string{}
			}
			m.ReactingUsers["thumbsup"] = sample(rng, others, 1+rng.Intn(3))
		}

		if rng.Float64() < cfg.ThreadRate {
			m.ThreadRootID = m.ID
			for j, author := range sample(rng, others, 1+rng.Intn(2)) {
				m.Replies = append(m.Replies, core.Message{
					ID:           fmt.Sprintf("%s-r%d", m.ID, j),
					Timestamp:    m.Timestamp.Add(time.Duration(j+1) * 5 * time.Minute),
					AuthorID:     author,
					ProjectID:    m.ProjectID,
					Channel:      m.Channel,
					Text:         replies[rng.Intn(len(replies))],
					ThreadRootID: m.ID,
				})
			}
			m.ReplyCount = len(m.Replies)
		}
	}
}

func otherUsers(users []core.User, exclude string) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != exclude {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// sample picks k distinct ids without replacement
func sample(rng *rand.Rand, ids []string, k int) []string {
	if k > len(ids) {
		k = len(ids)
	}
	out := make([]string, 0, k)
	for _, idx := range rng.Perm(len(ids))[:k] {
		out = append(out, ids[idx])
	}
	return out
}
