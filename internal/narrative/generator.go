package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"teamdigest/internal/core"
	"teamdigest/internal/llm"
	"teamdigest/internal/metrics"
)

// LLMClient defines the interface for LLM operations needed by the narrative generator
type LLMClient interface {
	// GenerateText generates text from a prompt
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
}

// Source tells where a digest's text came from
type Source string

const (
	SourceLLM         Source = "llm"
	SourceFallback    Source = "fallback"
	SourcePlaceholder Source = "placeholder"
)

// Fallback reasons, also used as metric labels
const (
	ReasonDisabled      = "llm_disabled"
	ReasonTimeout       = "timeout"
	ReasonLLMError      = "llm_error"
	ReasonEmptyResponse = "empty_response"
)

// ErrEmptyResponse is reported when the LLM returns only whitespace
var ErrEmptyResponse = errors.New("empty narrative from LLM")

const noUpdatesText = "No high-priority updates for your focus projects today."

// Config tunes narrative generation
type Config struct {
	Timeout         time.Duration
	Temperature     float32
	MaxTokens       int32
	Model           string
	MaxContextLines int // messages passed to the LLM
	MaxPerProject   int // messages per project in the fallback
}

// DefaultConfig returns the narrative defaults
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		Temperature:     0.1,
		MaxTokens:       400,
		MaxContextLines: 12,
		MaxPerProject:   4,
	}
}

// Item is one ranked message with its project context
type Item struct {
	ProjectID   string
	ProjectName string
	Phase       core.Phase
	Message     core.Message
}

// Request is the input of one narrative
type Request struct {
	User          core.User
	Day           int
	FocusProjects []string
	Items         []Item // ranked, most relevant first
}

// Result is a rendered narrative. Err carries the LLM failure when Source is
// SourceFallback; it is informational and never needs handling.
type Result struct {
	Text   string
	Source Source
	Reason string
	Err    error
}

// Generator turns ranked messages into a digest narrative, falling back to a
// rule-based rendering whenever the LLM is unavailable
type Generator struct {
	llmClient LLMClient
	config    Config
	log       zerolog.Logger
}

// NewGenerator creates a new narrative generator. A nil client always uses the fallback.
func NewGenerator(llmClient LLMClient, config Config, log zerolog.Logger) *Generator {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.MaxContextLines <= 0 {
		config.MaxContextLines = def.MaxContextLines
	}
	if config.MaxPerProject <= 0 {
		config.MaxPerProject = def.MaxPerProject
	}
	return &Generator{
		llmClient: llmClient,
		config:    config,
		log:       log.With().Str("component", "narrative").Logger(),
	}
}

// Header is the first line of every digest
func Header(user core.User, day int) string {
	return fmt.Sprintf("**Daily digest for %s (%s) – Day %d**", user.Name, user.Role, day)
}

// NoDigestText is used when the user has no focus record for the day
func NoDigestText(user core.User, day int) string {
	return fmt.Sprintf("No digest for %s on day %d.", user.Name, day)
}

// Generate renders the narrative for req. It never fails: LLM errors and
// timeouts produce the rule-based text.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	if len(req.Items) == 0 {
		return Result{
			Text:   Header(req.User, req.Day) + "\n\n" + noUpdatesText,
			Source: SourcePlaceholder,
		}
	}

	if g.llmClient == nil {
		return g.fallback(req, ReasonDisabled, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.llmClient.GenerateText(ctx, BuildPrompt(req, g.config.MaxContextLines), llm.TextGenerationOptions{
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
		Model:       g.config.Model,
	})
	metrics.NarrativeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)):
		return g.fallback(req, ReasonTimeout, err)
	case err != nil:
		return g.fallback(req, ReasonLLMError, err)
	case strings.TrimSpace(text) == "":
		return g.fallback(req, ReasonEmptyResponse, ErrEmptyResponse)
	}

	return Result{
		Text:   Header(req.User, req.Day) + "\n\n" + strings.TrimSpace(text),
		Source: SourceLLM,
	}
}

func (g *Generator) fallback(req Request, reason string, err error) Result {
	metrics.NarrativeFallbacks.WithLabelValues(reason).Inc()
	ev := g.log.Warn()
	if reason == ReasonDisabled {
		ev = g.log.Debug()
	}
	ev.Err(err).
		Str("user_id", req.User.ID).
		Int("day", req.Day).
		Str("reason", reason).
		Msg("Using rule-based digest")

	return Result{
		Text:   RuleBased(req, g.config.MaxPerProject),
		Source: SourceFallback,
		Reason: reason,
		Err:    err,
	}
}

// BuildPrompt constructs the LLM prompt from the first maxLines items
func BuildPrompt(req Request, maxLines int) string {
	var updates strings.Builder
	for i, it := range req.Items {
		if i >= maxLines {
			break
		}
		if i > 0 {
			updates.WriteString("\n")
		}
		tagStr := ""
		if tags := it.Message.Tags(); len(tags) > 0 {
			tagStr = "[" + strings.Join(tags, ", ") + "]"
		}
		updates.WriteString(fmt.Sprintf("%s (%s): %s %s (@ %s)", it.ProjectName, it.Phase, tagStr, it.Message.Text, it.Message.AuthorID))
	}

	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("You are creating a daily digest for a %s engineer.\n\n", req.User.Role))
	prompt.WriteString(fmt.Sprintf("FOCUS PROJECTS: %s\n\n", strings.Join(req.FocusProjects, ", ")))
	prompt.WriteString("RELEVANT UPDATES:\n")
	prompt.WriteString(updates.String())
	prompt.WriteString(`

Generate a concise digest (200-300 words max) with:
1. One-line summary of key themes
2. 3-6 bullet points of ACTIONABLE items (decisions, blockers, risks)
3. Project-phase context where relevant

Format with markdown headers. Be direct, skimmable, and action-oriented.`)

	return prompt.String()
}

// RuleBased renders items grouped by project in first-seen order, keeping at
// most maxPerProject messages per project
func RuleBased(req Request, maxPerProject int) string {
	var order []string
	groups := make(map[string][]Item)
	for _, it := range req.Items {
		if _, ok := groups[it.ProjectID]; !ok {
			order = append(order, it.ProjectID)
		}
		groups[it.ProjectID] = append(groups[it.ProjectID], it)
	}

	lines := []string{Header(req.User, req.Day), ""}
	for _, pid := range order {
		items := groups[pid]
		lines = append(lines, fmt.Sprintf("### %s – %s", items[0].ProjectName, items[0].Phase.Title()))
		for i, it := range items {
			if i >= maxPerProject {
				break
			}
			lines = append(lines, "- "+tag(it.Message)+it.Message.Text)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// tag is the label of the first flag set on m
func tag(m core.Message) string {
	switch {
	case m.IsDecision:
		return "[DECISION] "
	case m.IsRisk:
		return "[RISK] "
	case m.IsBlocker:
		return "[BLOCKER] "
	default:
		return ""
	}
}
