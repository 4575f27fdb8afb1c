package relevance

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"teamdigest/internal/core"
)

// DefaultLookbackDays bounds the engagement window of the interest model
const DefaultLookbackDays = 14

// Engagement weights, highest priority first
const (
	WeightAuthored = 3.0
	WeightReplied  = 2.0
	WeightReacted  = 1.5
	WeightMention  = 1.0
)

// freshnessFloor keeps old engagement counting a little
const freshnessFloor = 0.1

// InterestModel summarizes a user's engagement as a vector in embedding space.
// The cutoff is the timeline origin plus LookbackDays; later messages are ignored.
type InterestModel struct {
	Timeline     core.Timeline
	LookbackDays int
}

// NewInterestModel creates a model anchored on timeline
func NewInterestModel(timeline core.Timeline, lookbackDays int) InterestModel {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return InterestModel{Timeline: timeline, LookbackDays: lookbackDays}
}

// UserInterestVector computes the interest vector with day 0 on the first message
func UserInterestVector(user core.User, messages []core.Message, embeddings core.Embeddings, lookbackDays int) []float64 {
	return NewInterestModel(core.NewTimeline(messages), lookbackDays).Vector(user, messages, embeddings)
}

// Cutoff is the last instant whose messages count toward interest
func (im InterestModel) Cutoff() time.Time {
	return im.Timeline.DayStart(im.lookback())
}

// Vector returns the freshness-weighted mean embedding of the messages the user
// engaged with. The zero vector means no signal.
func (im InterestModel) Vector(user core.User, messages []core.Message, embeddings core.Embeddings) []float64 {
	acc := make([]float64, embeddings.Dim())
	if len(messages) == 0 {
		return acc
	}

	lookback := float64(im.lookback())
	cutoff := im.Cutoff()
	total := 0.0
	for i, m := range messages {
		if m.Timestamp.After(cutoff) {
			continue
		}
		w := EngagementWeight(user, m)
		if w == 0 {
			continue
		}

		daysOld := math.Floor(cutoff.Sub(m.Timestamp).Hours() / 24)
		w *= math.Max(freshnessFloor, 1-(daysOld/lookback)*0.9)

		floats.AddScaled(acc, w, embeddings[i])
		total += w
	}

	if total == 0 {
		return acc
	}
	floats.Scale(1/total, acc)
	return acc
}

func (im InterestModel) lookback() int {
	if im.LookbackDays <= 0 {
		return DefaultLookbackDays
	}
	return im.LookbackDays
}

// EngagementWeight applies the first matching engagement rule; 0 when none apply
func EngagementWeight(user core.User, m core.Message) float64 {
	switch {
	case m.AuthorID == user.ID:
		return WeightAuthored
	case m.InThread() && m.RepliedBy(user.ID):
		return WeightReplied
	case m.ReactedBy(user.ID):
		return WeightReacted
	case mentions(m.Text, user):
		return WeightMention
	default:
		return 0
	}
}

func mentions(text string, user core.User) bool {
	if strings.Contains(text, "@"+user.ID) {
		return true
	}
	return user.Name != "" && strings.Contains(strings.ToLower(text), strings.ToLower(user.Name))
}
