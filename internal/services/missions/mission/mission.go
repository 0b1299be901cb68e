// Package mission models mission records and their one-way lifecycle.
package mission

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents the persisted lifecycle state of a mission.
type Status string

const (
	// StatusActive marks a mission the student may keep viewing.
	StatusActive Status = "active"
	// StatusRejected marks a mission the student gave up. It is terminal.
	StatusRejected Status = "rejected"
)

// maxEmailLength follows the SMTP path limit.
const maxEmailLength = 254

var (
	// ErrEmptyEmail indicates the identity is blank.
	ErrEmptyEmail = errors.New("email is required")
	// ErrInvalidEmail indicates the identity is not a plain email address.
	ErrInvalidEmail = errors.New("email is invalid")
	// ErrInvalidStatus indicates an unknown persisted status value.
	ErrInvalidStatus = errors.New("status is invalid")
	// ErrIncompleteContent indicates a generated field is missing.
	ErrIncompleteContent = errors.New("mission content is incomplete")
	// ErrAlreadyRejected indicates a transition out of the terminal state.
	ErrAlreadyRejected = errors.New("mission already rejected")
)

// Content is the generated part of a mission. It is written once at issuance.
type Content struct {
	Title      string
	Lore       string
	Antagonist string
	Task       string
	TechStack  string
}

// Record is the persisted mission for one identity.
type Record struct {
	Email string
	Content
	Status Status
	// Timestamp is the last write time and moves on every transition.
	Timestamp time.Time
	// CreatedAt is the issuance time and never moves.
	CreatedAt time.Time
}

// NormalizeEmail validates a plain email address and returns its case-folded form.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrEmptyEmail
	}
	if len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "", ErrInvalidEmail
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", ErrInvalidEmail
	}
	return FoldEmail(email), nil
}

// FoldEmail canonicalizes an identity for comparison without validating it.
// Directory rows and store keys are folded the same way. Only case is
// folded: distinct mailboxes such as "straße" and "strasse" stay distinct.
func FoldEmail(raw string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(raw))
}

// ParseStatus parses a persisted status. Blank values predate the status
// column and read as active.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusActive:
		return StatusActive, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Normalize trims every field and requires all of them to be non-empty.
func (c Content) Normalize() (Content, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Lore = strings.TrimSpace(c.Lore)
	c.Antagonist = strings.TrimSpace(c.Antagonist)
	c.Task = strings.TrimSpace(c.Task)
	c.TechStack = strings.TrimSpace(c.TechStack)

	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"title", c.Title},
		{"lore", c.Lore},
		{"antagonist", c.Antagonist},
		{"task", c.Task},
		{"tech_stack", c.TechStack},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return Content{}, fmt.Errorf("%w: missing %s", ErrIncompleteContent, strings.Join(missing, ", "))
	}
	return c, nil
}

// NewRecord builds an active record for a freshly generated mission.
func NewRecord(email string, content Content, now time.Time) (Record, error) {
	normalizedEmail, err := NormalizeEmail(email)
	if err != nil {
		return Record{}, err
	}
	normalizedContent, err := content.Normalize()
	if err != nil {
		return Record{}, err
	}
	now = now.UTC()
	return Record{
		Email:     normalizedEmail,
		Content:   normalizedContent,
		Status:    StatusActive,
		Timestamp: now,
		CreatedAt: now,
	}, nil
}

// Reject returns the record moved to the terminal rejected state. Content and
// CreatedAt are carried over unchanged.
func (r Record) Reject(now time.Time) (Record, error) {
	if r.Status == StatusRejected {
		return Record{}, ErrAlreadyRejected
	}
	r.Status = StatusRejected
	r.Timestamp = now.UTC()
	return r, nil
}

// Standing reports the lifecycle standing of a stored record.
func (r Record) Standing() Standing {
	if r.Status == StatusRejected {
		return StandingRejected
	}
	return StandingActive
}
