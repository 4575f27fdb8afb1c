package core

import (
	"errors"
	"fmt"
)

// Configuration errors. These indicate a contract violation by an upstream
// collaborator and are returned before any ranking work starts.
var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidPhase      = errors.New("invalid phase")
	ErrEmbeddingCount    = errors.New("embedding count does not match message count")
	ErrDimensionMismatch = errors.New("inconsistent embedding dimensionality")
	ErrUnsortedMessages  = errors.New("messages are not in timestamp order")
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

// Embeddings holds one vector per message, row i belonging to message i.
type Embeddings [][]float64

// Dim returns the vector dimensionality, or 0 when there are no rows.
func (e Embeddings) Dim() int {
	if len(e) == 0 {
		return 0
	}
	return len(e[0])
}

// Rows returns the subset of rows at idxs, in order.
func (e Embeddings) Rows(idxs []int) Embeddings {
	out := make(Embeddings, len(idxs))
	for i, idx := range idxs {
		out[i] = e[idx]
	}
	return out
}

// Validate checks that there are n rows of identical dimensionality.
func (e Embeddings) Validate(n int) error {
	if len(e) != n {
		return fmt.Errorf("%w: %d embeddings for %d messages", ErrEmbeddingCount, len(e), n)
	}
	dim := e.Dim()
	for i, row := range e {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d dims, expected %d", ErrDimensionMismatch, i, len(row), dim)
		}
	}
	return nil
}

// ValidateDataset is the boundary check for a digest run.
func ValidateDataset(users []User, projects []Project, messages []Message, embeddings Embeddings) error {
	for _, u := range users {
		if _, err := ParseRole(string(u.Role)); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for _, p := range projects {
		for _, ph := range p.Phases {
			if _, err := ParsePhase(string(ph.Name)); err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
			return fmt.Errorf("%w: message %s precedes %s", ErrUnsortedMessages, messages[i].ID, messages[i-1].ID)
		}
	}
	return embeddings.Validate(len(messages))
}
