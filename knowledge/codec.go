package knowledge

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Content files are plain text: a YAML header block between --- fences,
// then the free-form body. Nothing executable is ever deserialized.

const frontMatterFence = "---"

type header struct {
	ID                string   `yaml:"id"`
	Type              ItemType `yaml:"type"`
	Status            Status   `yaml:"status"`
	Scope             string   `yaml:"scope,omitempty"`
	Keywords          []string `yaml:"keywords,omitempty"`
	Added             string   `yaml:"added"`
	DeprecationReason string   `yaml:"deprecation_reason,omitempty"`
	ReplacedBy        string   `yaml:"replaced_by,omitempty"`
	Links             []Link   `yaml:"links,omitempty"`
}

// encodeItem renders an item to its on-disk form.
func encodeItem(it *Item) ([]byte, error) {
	h := header{
		ID:                it.ID,
		Type:              it.Type,
		Status:            it.Status,
		Scope:             it.Scope,
		Keywords:          it.Keywords,
		Added:             it.AddedAt.UTC().Format(time.RFC3339),
		DeprecationReason: it.DeprecationReason,
		ReplacedBy:        it.ReplacedBy,
		Links:             it.Links,
	}
	head, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontMatterFence + "\n")
	b.Write(head)
	b.WriteString(frontMatterFence + "\n")
	b.WriteString(it.Content)
	if !strings.HasSuffix(it.Content, "\n") {
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// decodeItem parses the on-disk form back into an item.
func decodeItem(data []byte) (*Item, error) {
	head, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, err
	}

	var h header
	if err := yaml.Unmarshal([]byte(head), &h); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	added, err := time.Parse(time.RFC3339, h.Added)
	if err != nil {
		return nil, fmt.Errorf("parse added date %q: %w", h.Added, err)
	}

	it := &Item{
		ID:                h.ID,
		Content:           strings.TrimSuffix(body, "\n"),
		Keywords:          h.Keywords,
		Scope:             h.Scope,
		Type:              h.Type,
		Status:            h.Status,
		DeprecationReason: h.DeprecationReason,
		ReplacedBy:        h.ReplacedBy,
		AddedAt:           added,
		Links:             h.Links,
	}
	if it.Type == "" {
		it.Type = TypeGeneral
	}
	if it.Status == "" {
		it.Status = StatusActive
	}
	return it, nil
}

// splitFrontMatter separates the fenced YAML header from the body.
func splitFrontMatter(text string) (head, body string, err error) {
	if !strings.HasPrefix(text, frontMatterFence+"\n") {
		return "", "", fmt.Errorf("missing front matter fence")
	}
	rest := text[len(frontMatterFence)+1:]
	end := strings.Index(rest, "\n"+frontMatterFence+"\n")
	if end < 0 {
		return "", "", fmt.Errorf("unterminated front matter")
	}
	return rest[:end+1], rest[end+len(frontMatterFence)+2:], nil
}
