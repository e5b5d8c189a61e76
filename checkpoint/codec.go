package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkpoint files are plain text: a YAML header with the identifier and
// numeric fields, then "## "-titled sections of free-form body text.
// Structured list rows use " | " separators so they stay grep-able.

const fence = "---"

type header struct {
	ID            string  `yaml:"id"`
	Created       string  `yaml:"created"`
	Trigger       string  `yaml:"trigger"`
	Confidence    float64 `yaml:"confidence"`
	MessageCount  int     `yaml:"message_count,omitempty"`
	TokenEstimate int     `yaml:"token_estimate,omitempty"`
}

// Section titles, in file order.
const (
	secCoreQuestion  = "Core Question"
	secThesis        = "Thesis"
	secOpenQuestions = "Open Questions"
	secSources       = "Sources"
	secTensions      = "Tensions"
	secContributions = "Unique Contributions"
	secKeyEvidence   = "Key Evidence"
	secReasoning     = "Reasoning"
	secFilesExplored = "Files Explored"
	secFilesChanged  = "Files Changed"
	secCodeRefs      = "Code References"
)

func encode(cp *Checkpoint) ([]byte, error) {
	h := header{
		ID:            cp.ID,
		Created:       cp.CreatedAt.UTC().Format(time.RFC3339),
		Trigger:       cp.Trigger,
		Confidence:    cp.Confidence,
		MessageCount:  cp.MessageCount,
		TokenEstimate: cp.TokenEstimate,
	}
	head, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	var b strings.Builder
	b.WriteString(fence + "\n")
	b.Write(head)
	b.WriteString(fence + "\n")

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		b.WriteString("\n## " + title + "\n")
		b.WriteString(strings.TrimRight(body, "\n") + "\n")
	}
	list := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		var body strings.Builder
		for _, line := range lines {
			body.WriteString("- " + line + "\n")
		}
		section(title, body.String())
	}

	section(secCoreQuestion, cp.CoreQuestion)
	section(secThesis, cp.Thesis)
	list(secOpenQuestions, cp.OpenQuestions)

	var sources []string
	for _, src := range cp.Sources {
		sources = append(sources, fmt.Sprintf("%s | %s | %s | %s", src.ID, src.Kind, src.Relation, src.Take))
	}
	list(secSources, sources)

	var tensions []string
	for _, t := range cp.Tensions {
		row := fmt.Sprintf("%s <> %s | %s", t.SourceA, t.SourceB, t.Nature)
		if t.Resolution != "" {
			row += " | " + t.Resolution
		}
		tensions = append(tensions, row)
	}
	list(secTensions, tensions)

	list(secContributions, cp.Contributions)
	list(secKeyEvidence, cp.KeyEvidence)
	section(secReasoning, cp.Reasoning)
	list(secFilesExplored, cp.FilesExplored)
	list(secFilesChanged, cp.FilesChanged)

	var refs []string
	for _, r := range cp.CodeRefs {
		refs = append(refs, fmt.Sprintf("%s:%s | %s", r.File, r.Lines, r.Relevance))
	}
	list(secCodeRefs, refs)

	return []byte(b.String()), nil
}

func decode(data []byte) (*Checkpoint, error) {
	text := string(data)
	if !strings.HasPrefix(text, fence+"\n") {
		return nil, fmt.Errorf("missing header fence")
	}
	rest := text[len(fence)+1:]
	end := strings.Index(rest, "\n"+fence+"\n")
	if end < 0 {
		return nil, fmt.Errorf("unterminated header")
	}

	var h header
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &h); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	created, err := time.Parse(time.RFC3339, h.Created)
	if err != nil {
		return nil, fmt.Errorf("parse created %q: %w", h.Created, err)
	}

	cp := &Checkpoint{
		ID:            h.ID,
		CreatedAt:     created,
		Trigger:       h.Trigger,
		Confidence:    h.Confidence,
		MessageCount:  h.MessageCount,
		TokenEstimate: h.TokenEstimate,
	}

	for title, body := range splitSections(rest[end+len(fence)+2:]) {
		switch title {
		case secCoreQuestion:
			cp.CoreQuestion = strings.TrimSpace(body)
		case secThesis:
			cp.Thesis = strings.TrimSpace(body)
		case secOpenQuestions:
			cp.OpenQuestions = listLines(body)
		case secSources:
			for _, line := range listLines(body) {
				parts := splitRow(line, 4)
				cp.Sources = append(cp.Sources, Source{
					ID: parts[0], Kind: parts[1], Relation: parts[2], Take: parts[3],
				})
			}
		case secTensions:
			for _, line := range listLines(body) {
				parts := splitRow(line, 3)
				a, b := splitPair(parts[0])
				cp.Tensions = append(cp.Tensions, Tension{
					SourceA: a, SourceB: b, Nature: parts[1], Resolution: parts[2],
				})
			}
		case secContributions:
			cp.Contributions = listLines(body)
		case secKeyEvidence:
			cp.KeyEvidence = listLines(body)
		case secReasoning:
			cp.Reasoning = strings.TrimSpace(body)
		case secFilesExplored:
			cp.FilesExplored = listLines(body)
		case secFilesChanged:
			cp.FilesChanged = listLines(body)
		case secCodeRefs:
			for _, line := range listLines(body) {
				parts := splitRow(line, 2)
				file, lines := splitLoc(parts[0])
				cp.CodeRefs = append(cp.CodeRefs, CodeRef{
					File: file, Lines: lines, Relevance: parts[1],
				})
			}
		}
	}
	return cp, nil
}

// splitSections maps "## Title" headings to their body text.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	var title string
	var buf strings.Builder
	flush := func() {
		if title != "" {
			sections[title] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			title = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		buf.WriteString(line + "\n")
	}
	flush()
	return sections
}

func listLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			out = append(out, strings.TrimPrefix(line, "- "))
		}
	}
	return out
}

// splitRow splits a " | " row into exactly n fields, padding with empties.
func splitRow(line string, n int) []string {
	parts := strings.SplitN(line, " | ", n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func splitPair(field string) (string, string) {
	parts := strings.SplitN(field, " <> ", 2)
	if len(parts) < 2 {
		return strings.TrimSpace(field), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func splitLoc(field string) (string, string) {
	i := strings.LastIndex(field, ":")
	if i < 0 {
		return field, ""
	}
	return field[:i], field[i+1:]
}
