package generator

import (
	"context"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

// Static returns the same mission content on every call. It backs the
// "static" provider for local development without model credentials.
type Static struct {
	Content mission.Content
}

// DefaultStaticContent is served when Static has no content configured.
var DefaultStaticContent = mission.Content{
	Title:      "Operation Toaster Uprising",
	Lore:       "The office toaster has gained sentience and now only toasts bread for people who compliment it.",
	Antagonist: "A smart toaster with a fragile ego and a surprisingly good vocabulary",
	Task:       "Build a compliment tracker for the toaster. Core Features: submit compliments, rank employees by toast eligibility, show today's toast queue. Optional Features: sentiment scoring, a public wall of shame.",
	TechStack:  "React, Node.js, Express, SQLite",
}

// Generate returns the configured content, or DefaultStaticContent.
func (s Static) Generate(ctx context.Context) (mission.Content, error) {
	if err := ctx.Err(); err != nil {
		return mission.Content{}, err
	}
	content := s.Content
	if content == (mission.Content{}) {
		content = DefaultStaticContent
	}
	return content.Normalize()
}
