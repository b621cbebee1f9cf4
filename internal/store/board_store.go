package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/studiosync/internal/model"
)

// cardRow mirrors the cards table.
type cardRow struct {
	Seq               int64     `db:"seq"`
	ID                string    `db:"id"`
	BoardID           string    `db:"board_id"`
	ColumnID          string    `db:"column_id"`
	Title             string    `db:"title"`
	DescriptionBlocks string    `db:"description_blocks"`
	Labels            string    `db:"labels"`
	SourceMessageID   string    `db:"source_message_id"`
	SourceEmailDate   string    `db:"source_email_date"`
	ResponsibleID     string    `db:"responsible_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// commentRow mirrors the card_comments table.
type commentRow struct {
	Seq       int64     `db:"seq"`
	ID        string    `db:"id"`
	CardID    string    `db:"card_id"`
	Author    string    `db:"author"`
	Text      string    `db:"text"`
	IsEmail   int       `db:"is_email"`
	CreatedAt time.Time `db:"created_at"`
}

// EnsureBoard creates the board if missing and adds absent columns.
func (t *txn) EnsureBoard(ctx context.Context, board model.Board) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		board.ID, board.Title, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensuring board %s: %w", board.ID, err)
	}

	for i, col := range board.Columns {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO board_columns (id, board_id, title, position)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			col.ID, board.ID, col.Title, i,
		)
		if err != nil {
			return fmt.Errorf("ensuring column %s: %w", col.ID, err)
		}
	}

	return nil
}

// GetBoard retrieves a board with its columns in position order.
func (t *txn) GetBoard(ctx context.Context, id string) (*model.Board, error) {
	board := model.Board{ID: id}
	err := t.tx.GetContext(ctx, &board.Title,
		"SELECT title FROM boards WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting board %s: %w", id, err)
	}

	err = t.tx.SelectContext(ctx, &board.Columns, `
		SELECT id, title FROM board_columns
		WHERE board_id = ? ORDER BY position, id`, id)
	if err != nil {
		return nil, fmt.Errorf("getting columns of board %s: %w", id, err)
	}

	return &board, nil
}

// ListCards returns every card in insertion order with its comments.
func (t *txn) ListCards(ctx context.Context) ([]model.Card, error) {
	var rows []cardRow
	if err := t.tx.SelectContext(ctx, &rows,
		"SELECT * FROM cards ORDER BY seq"); err != nil {

		return nil, fmt.Errorf("querying cards: %w", err)
	}

	var comments []commentRow
	if err := t.tx.SelectContext(ctx, &comments,
		"SELECT * FROM card_comments ORDER BY seq"); err != nil {

		return nil, fmt.Errorf("querying card comments: %w", err)
	}

	byCard := make(map[string][]model.Comment)
	for _, c := range comments {
		byCard[c.CardID] = append(byCard[c.CardID], c.toModel())
	}

	cards := make([]model.Card, 0, len(rows))
	for _, r := range rows {
		card, err := r.toModel()
		if err != nil {
			return nil, err
		}
		card.Comments = byCard[card.ID]
		cards = append(cards, card)
	}

	return cards, nil
}

// GetCard retrieves a single card by id.
func (t *txn) GetCard(ctx context.Context, id string) (*model.Card, error) {
	var row cardRow
	err := t.tx.GetContext(ctx, &row, "SELECT * FROM cards WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting card %s: %w", id, err)
	}

	card, err := row.toModel()
	if err != nil {
		return nil, err
	}

	var comments []commentRow
	err = t.tx.SelectContext(ctx, &comments,
		"SELECT * FROM card_comments WHERE card_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("getting comments of card %s: %w", id, err)
	}
	for _, c := range comments {
		card.Comments = append(card.Comments, c.toModel())
	}

	return &card, nil
}

// CreateCard inserts a card. Generates a UUID if ID is empty.
func (t *txn) CreateCard(
	ctx context.Context, card model.Card,
) (model.Card, error) {
	if card.ID == "" {
		card.ID = "card_" + uuid.New().String()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	if card.Labels == nil {
		card.Labels = []string{}
	}
	if card.DescriptionBlocks == nil {
		card.DescriptionBlocks = []model.DescriptionBlock{}
	}

	blocks, err := json.Marshal(card.DescriptionBlocks)
	if err != nil {
		return model.Card{}, fmt.Errorf("marshaling description of card %s: %w", card.ID, err)
	}
	labels, err := json.Marshal(card.Labels)
	if err != nil {
		return model.Card{}, fmt.Errorf("marshaling labels of card %s: %w", card.ID, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO cards (
			id, board_id, column_id, title,
			description_blocks, labels,
			source_message_id, source_email_date, responsible_id,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.BoardID, card.ColumnID, card.Title,
		string(blocks), string(labels),
		card.SourceMessageID, card.SourceEmailDate, card.ResponsibleID,
		card.CreatedAt.UTC(),
	)
	if err != nil {
		return model.Card{}, fmt.Errorf("creating card: %w", err)
	}

	for _, c := range card.Comments {
		if err := t.AppendComment(ctx, card.ID, c); err != nil {
			return model.Card{}, err
		}
	}

	return card, nil
}

// AppendComment adds a comment to the end of a card's thread.
func (t *txn) AppendComment(
	ctx context.Context, cardID string, c model.Comment,
) error {
	if c.ID == "" {
		c.ID = "ext_" + uuid.New().String()
	}
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO card_comments (id, card_id, author, text, is_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, cardID, c.Author, c.Text, boolToInt(c.IsEmail), c.Date.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending comment to card %s: %w", cardID, err)
	}
	return nil
}

// MoveCard changes the column of a card.
func (t *txn) MoveCard(ctx context.Context, cardID, columnID string) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE cards SET column_id = ? WHERE id = ?", columnID, cardID)
	if err != nil {
		return fmt.Errorf("moving card %s: %w", cardID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	return nil
}

func (r cardRow) toModel() (model.Card, error) {
	card := model.Card{
		ID:              r.ID,
		BoardID:         r.BoardID,
		ColumnID:        r.ColumnID,
		Title:           r.Title,
		SourceMessageID: r.SourceMessageID,
		SourceEmailDate: r.SourceEmailDate,
		ResponsibleID:   r.ResponsibleID,
		CreatedAt:       r.CreatedAt,
	}

	if r.DescriptionBlocks != "" {
		if err := json.Unmarshal([]byte(r.DescriptionBlocks), &card.DescriptionBlocks); err != nil {
			return model.Card{}, fmt.Errorf("unmarshaling description of card %s: %w", r.ID, err)
		}
	}
	if r.Labels != "" {
		if err := json.Unmarshal([]byte(r.Labels), &card.Labels); err != nil {
			return model.Card{}, fmt.Errorf("unmarshaling labels of card %s: %w", r.ID, err)
		}
	}

	return card, nil
}

func (r commentRow) toModel() model.Comment {
	return model.Comment{
		ID:      r.ID,
		Author:  r.Author,
		Text:    r.Text,
		Date:    r.CreatedAt,
		IsEmail: r.IsEmail != 0,
	}
}
