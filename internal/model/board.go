package model

import "time"

// Canonical column id prefixes. Every board has a todo and a revision column
// whose ids are derived from the board id.
const (
	todoColumnPrefix     = "c_todo_"
	revisionColumnPrefix = "c_revision_"
)

// TodoColumnID returns the canonical "Pendiente" column id of a board.
func TodoColumnID(boardID string) string {
	return todoColumnPrefix + boardID
}

// RevisionColumnID returns the canonical "Revisión" column id of a board.
func RevisionColumnID(boardID string) string {
	return revisionColumnPrefix + boardID
}

// Board is a kanban board owning an ordered list of columns.
type Board struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Columns []Column `json:"columns"`
}

// Column is a workflow stage on a board.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CanonicalColumns returns the columns every board must carry.
func CanonicalColumns(boardID string) []Column {
	return []Column{
		{ID: TodoColumnID(boardID), Title: "Pendiente"},
		{ID: RevisionColumnID(boardID), Title: "Revisión"},
	}
}

// DescriptionBlock is one block of rich card description. Only text blocks
// are produced by the automation engine.
type DescriptionBlock struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// Comment is a note appended to a card.
type Comment struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
	Date   time.Time `json:"date"`

	// IsEmail marks comments derived from an incoming email.
	IsEmail bool `json:"isEmail"`
}

// Card is a unit of work living in one column of one board.
type Card struct {
	ID                string             `json:"id"`
	BoardID           string             `json:"boardId"`
	ColumnID          string             `json:"columnId"`
	Title             string             `json:"title"`
	DescriptionBlocks []DescriptionBlock `json:"descriptionBlocks"`
	Labels            []string           `json:"labels"`
	Comments          []Comment          `json:"comments"`
	CreatedAt         time.Time          `json:"createdAt"`

	// SourceMessageID correlates a card created from email with the
	// originating message. Empty for manually created cards.
	SourceMessageID string `json:"sourceMessageId,omitempty"`

	// SourceEmailDate is the Date header of the originating message.
	SourceEmailDate string `json:"sourceEmailDate,omitempty"`

	// ResponsibleID is the identity the card was routed for.
	ResponsibleID string `json:"responsibleId,omitempty"`
}
