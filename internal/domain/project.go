package domain

import "time"

// Project owns a generated site's file set.
type Project struct {
	ID        string
	UserID    string
	Name      string
	Files     FileSet
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatRole enumerates transcript authorship.
type ChatRole string

const (
	ChatRoleUser ChatRole = "user"
	ChatRoleAI   ChatRole = "ai"
)

// ChatMessage is one append-only transcript entry for a project.
type ChatMessage struct {
	ID        string
	ProjectID string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}
