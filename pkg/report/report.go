// Package report builds the human readable report attached to a task result.
package report

import (
	"encoding/json"
	"strings"
)

// BlockType identifies the kind of content held by a [Block].
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockBullet    BlockType = "bullet"
)

// Block is a single piece of section content.
type Block struct {
	Type  BlockType `json:"type"`
	Text  string    `json:"text"`
	Level int       `json:"level,omitempty"`
}

// Section is an ordered list of blocks.
type Section struct {
	Blocks []Block `json:"blocks"`
}

// AddParagraph appends a paragraph to the section.
func (s *Section) AddParagraph(text string) *Section {
	s.Blocks = append(s.Blocks, Block{Type: BlockParagraph, Text: text})
	return s
}

// AddBullet appends a bullet at the given nesting level. Levels below 1 are treated as 1.
func (s *Section) AddBullet(text string, level int) *Section {
	if level < 1 {
		level = 1
	}
	s.Blocks = append(s.Blocks, Block{Type: BlockBullet, Text: text, Level: level})
	return s
}

// Report is a titled summary plus sections.
type Report struct {
	Title    string
	Summary  string
	Sections []*Section
}

// New returns an empty report with the given title.
func New(title string) *Report {
	return &Report{Title: title, Sections: make([]*Section, 0)}
}

// AddSection appends and returns a new empty section.
func (r *Report) AddSection() *Section {
	s := &Section{Blocks: make([]Block, 0)}
	r.Sections = append(r.Sections, s)
	return s
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# " + r.Title + "\n")
	for _, s := range r.Sections {
		if len(s.Blocks) == 0 {
			continue
		}
		sb.WriteString("\n")
		prev := BlockType("")
		for _, b := range s.Blocks {
			switch b.Type {
			case BlockParagraph:
				if prev != "" {
					sb.WriteString("\n")
				}
				sb.WriteString(b.Text + "\n")
			case BlockBullet:
				if prev == BlockParagraph {
					sb.WriteString("\n")
				}
				sb.WriteString(strings.Repeat("  ", b.Level-1) + "* " + b.Text + "\n")
			}
			prev = b.Type
		}
	}
	return sb.String()
}

// Dict is the serialized form of a [Report], consumed by the pipeline's reporting layer.
type Dict struct {
	Title    string     `json:"title"`
	Summary  string     `json:"summary"`
	Content  string     `json:"content"`
	Sections []*Section `json:"sections"`
}

// ToDict serializes the report into its descriptor.
func (r *Report) ToDict() Dict {
	return Dict{
		Title:    r.Title,
		Summary:  r.Summary,
		Content:  r.Markdown(),
		Sections: r.Sections,
	}
}

// MarshalJSON encodes the report as its [Dict] descriptor.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToDict())
}
