package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/studiosync/internal/model"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write lost a race with another
	// writer. It is safe to retry the whole Update.
	ErrConflict = errors.New("store write conflict")
)

// MailSet names one of the bookkeeping id sets kept for mailbox messages.
type MailSet string

const (
	MailSetProcessed MailSet = "processed"
	MailSetDeleted   MailSet = "deleted"
	MailSetSpam      MailSet = "spam"
)

// MailIDEntry is one member of a mail id set.
type MailIDEntry struct {
	ID        string    `db:"id"`
	Subject   string    `db:"subject"`
	Actor     string    `db:"actor"`
	CreatedAt time.Time `db:"created_at"`
}

// AttachmentJob asks a downstream worker to save a message's attachments.
type AttachmentJob struct {
	ID         string
	Identity   string
	Folder     string
	ExternalID string
	Filenames  []string
	CreatedAt  time.Time
}

// BoardTx covers boards and the cards they hold.
type BoardTx interface {
	// EnsureBoard creates the board if missing and adds any of its
	// columns that do not exist yet. Existing columns are kept.
	EnsureBoard(ctx context.Context, board model.Board) error
	GetBoard(ctx context.Context, id string) (*model.Board, error)

	// ListCards returns every card in insertion order.
	ListCards(ctx context.Context) ([]model.Card, error)
	GetCard(ctx context.Context, id string) (*model.Card, error)
	CreateCard(ctx context.Context, card model.Card) (model.Card, error)
	AppendComment(ctx context.Context, cardID string, c model.Comment) error
	MoveCard(ctx context.Context, cardID, columnID string) error
}

// LedgerTx is the automation idempotence record.
type LedgerTx interface {
	HasLedgerKey(ctx context.Context, key string) (bool, error)

	// RecordLedgerKey adds key. Recording an existing key is a no-op.
	RecordLedgerKey(ctx context.Context, key string) error
	CountLedgerKeys(ctx context.Context) (int, error)
}

// ActivityTx is the bounded activity log.
type ActivityTx interface {
	// AppendActivity prepends an entry and drops everything beyond the
	// newest model.MaxActivityEntries.
	AppendActivity(ctx context.Context, e model.ActivityEntry) error

	// ListActivity returns entries newest first.
	ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)
}

// MailTx covers the local processed/deleted/spam id sets.
type MailTx interface {
	// AddMailID inserts id into set and reports whether it was new.
	// When limit > 0 the set is trimmed to the newest limit ids.
	AddMailID(
		ctx context.Context, set MailSet, entry MailIDEntry, limit int,
	) (bool, error)

	// RemoveMailID deletes id from set and reports whether it existed.
	RemoveMailID(ctx context.Context, set MailSet, id string) (bool, error)
	ListMailIDs(ctx context.Context, set MailSet) ([]MailIDEntry, error)

	// PurgeMailIDs drops ids added before the cutoff.
	PurgeMailIDs(
		ctx context.Context, set MailSet, before time.Time,
	) (int, error)
}

// AttachmentTx is the attachment save queue.
type AttachmentTx interface {
	// EnqueueAttachments adds a job unless one already exists for the
	// same (identity, folder, external id).
	EnqueueAttachments(ctx context.Context, job AttachmentJob) (bool, error)
	ListAttachmentJobs(ctx context.Context) ([]AttachmentJob, error)
	CompleteAttachmentJob(ctx context.Context, id string) error
}

// Tx is everything available inside one transaction.
type Tx interface {
	BoardTx
	LedgerTx
	ActivityTx
	MailTx
	AttachmentTx
}

// Store is the document store. Update runs fn inside a single serialized
// write transaction: either every write fn made commits or none does.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
