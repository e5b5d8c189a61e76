// Package core defines the shared types and error taxonomy of the memory
// engine: conversation turns fed to the trigger detector, identifier
// validation shared by both stores, and the sentinel errors every public
// operation maps expected failures onto.
package core

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation turn as fed to the trigger detector.
// Turns are transient input; they are never persisted.
type Turn struct {
	Role Role
	Text string
}
