// Package knowledge stores durable cross-session insights: mutable items
// with a lifecycle (active → deprecated → archived), curated keywords, and
// optional links between items. Each item is one content file with a
// structured header; an index file enumerates all items for filtering
// without opening every content file.
package knowledge

import "time"

// ItemType classifies a knowledge item. Each type carries its own default
// recall threshold (see config.ThresholdFor).
type ItemType string

const (
	TypeGeneral    ItemType = "general-knowledge"
	TypePreference ItemType = "preference"
	TypeTodo       ItemType = "todo"
	TypeReference  ItemType = "reference"
)

// Status is the lifecycle state of an item. Deprecated and archived items
// are kept on disk; only explicit removal or age-based maintenance deletes.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// Link connects one item to another.
type Link struct {
	Target string `yaml:"target"`
	Kind   string `yaml:"kind"`
	Note   string `yaml:"note,omitempty"`
}

// Item is one knowledge item.
//
// Invariant: an active item's embedding in the vector store always
// corresponds to its current content; every content mutation re-embeds.
type Item struct {
	ID                string
	Content           string
	Keywords          []string
	Scope             string // optional skill/project scope
	Type              ItemType
	Status            Status
	DeprecationReason string
	ReplacedBy        string
	AddedAt           time.Time
	Links             []Link
}

// clone returns a deep copy so cache consumers can never mutate cached state.
func (it Item) clone() Item {
	out := it
	out.Keywords = append([]string(nil), it.Keywords...)
	out.Links = append([]Link(nil), it.Links...)
	return out
}
