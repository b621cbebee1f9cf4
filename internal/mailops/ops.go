// Package mailops implements user-facing mailbox mutations: moving
// messages between folders and maintaining the local processed, deleted
// and spam id sets.
package mailops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/studiosync/internal/activity"
	"github.com/nhle/studiosync/internal/credential"
	"github.com/nhle/studiosync/internal/fetcher"
	"github.com/nhle/studiosync/internal/mailcache"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
)

const (
	// DefaultArchiveFolder receives archived INBOX messages.
	DefaultArchiveFolder = "Gestionados"

	// DefaultProcessedCap bounds the processed id set.
	DefaultProcessedCap = 500

	// DefaultDeletedRetention is how long deleted ids are remembered.
	DefaultDeletedRetention = 30 * 24 * time.Hour

	inboxFolder = "INBOX"
)

// Config configures a Service.
type Config struct {
	Resolver *credential.Resolver
	Mover    fetcher.Mover
	Cache    *mailcache.Cache
	Store    store.Store

	ArchiveFolder    string
	ProcessedCap     int
	DeletedRetention time.Duration

	Log *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service performs mailbox mutations.
type Service struct {
	resolver  *credential.Resolver
	mover     fetcher.Mover
	cache     *mailcache.Cache
	store     store.Store
	archive   string
	cap       int
	retention time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	archive := cfg.ArchiveFolder
	if archive == "" {
		archive = DefaultArchiveFolder
	}
	limit := cfg.ProcessedCap
	if limit <= 0 {
		limit = DefaultProcessedCap
	}
	retention := cfg.DeletedRetention
	if retention <= 0 {
		retention = DefaultDeletedRetention
	}

	return &Service{
		resolver:  cfg.Resolver,
		mover:     cfg.Mover,
		cache:     cfg.Cache,
		store:     cfg.Store,
		archive:   archive,
		cap:       limit,
		retention: retention,
		log:       log,
		clock:     clock,
	}
}

// MoveMessage relocates a message on the mail server, then drops it from
// the cached source folder and schedules a refresh of that folder. The
// destination folder is left to its next refresh. When the bridge reports
// a failure the cache is left untouched.
func (s *Service) MoveMessage(
	ctx context.Context, identity string, id model.ExternalID,
	fromFolder, toFolder string,
) error {
	creds := s.resolver.Resolve(identity)
	if creds.IsNone() {
		return fmt.Errorf("moving %s for %s: %w", id, identity,
			credential.ErrMissing)
	}

	err := s.mover.Move(
		ctx, creds.UnwrapOr(model.Credentials{}), id, fromFolder, toFolder,
	)
	if err != nil {
		return fmt.Errorf("moving %s for %s: %w", id, identity, err)
	}

	s.log.InfoContext(ctx, "Moved message",
		"identity", identity, "external_id", id,
		"from", fromFolder, "to", toFolder)

	if s.cache != nil {
		s.cache.RemoveMessage(identity, fromFolder, id)
		s.cache.ScheduleRefresh(identity, fromFolder)
	}

	return nil
}

// Archive moves an INBOX message to the archive folder.
func (s *Service) Archive(
	ctx context.Context, identity string, id model.ExternalID,
) error {
	return s.MoveMessage(ctx, identity, id, inboxFolder, s.archive)
}

// ArchiveFolder returns the configured archive folder.
func (s *Service) ArchiveFolder() string {
	return s.archive
}

// MarkProcessed records that a message was converted to a card. The set
// keeps only the newest ids up to the configured cap. An activity entry is
// written the first time only.
func (s *Service) MarkProcessed(
	ctx context.Context, id model.ExternalID, subject, actor string,
) (bool, error) {
	return s.mark(ctx, store.MailSetProcessed, id, subject, actor, s.cap,
		model.ActivityMail,
		fmt.Sprintf("Correu convertit a fitxa: %s", subject))
}

// MarkDeleted hides a message locally. The id is forgotten after the
// retention period.
func (s *Service) MarkDeleted(
	ctx context.Context, id model.ExternalID, subject, actor string,
) (bool, error) {
	return s.mark(ctx, store.MailSetDeleted, id, subject, actor, 0,
		model.ActivityMail,
		fmt.Sprintf("Correu eliminat: %s", subject))
}

// MarkSpam flags a message as spam.
func (s *Service) MarkSpam(
	ctx context.Context, id model.ExternalID, subject, actor string,
) (bool, error) {
	return s.mark(ctx, store.MailSetSpam, id, subject, actor, 0,
		model.ActivityMail,
		fmt.Sprintf("Correu marcat com a spam: %s", subject))
}

func (s *Service) mark(
	ctx context.Context, set store.MailSet, id model.ExternalID,
	subject, actor string, limit int, typ, text string,
) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("marking %s: empty message id", set)
	}

	now := s.clock().UTC()

	var added bool
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		added, err = tx.AddMailID(ctx, set, store.MailIDEntry{
			ID:        id.String(),
			Subject:   subject,
			Actor:     actor,
			CreatedAt: now,
		}, limit)
		if err != nil || !added {
			return err
		}

		return tx.AppendActivity(ctx, activity.NewEntry(typ, text, actor, now))
	})
	if err != nil {
		return false, fmt.Errorf("marking %s as %s: %w", id, set, err)
	}

	return added, nil
}

// UnmarkProcessed removes a message from the processed set.
func (s *Service) UnmarkProcessed(
	ctx context.Context, id model.ExternalID,
) (bool, error) {
	return s.unmark(ctx, store.MailSetProcessed, id)
}

// RestoreDeleted removes a message from the deleted set.
func (s *Service) RestoreDeleted(
	ctx context.Context, id model.ExternalID,
) (bool, error) {
	return s.unmark(ctx, store.MailSetDeleted, id)
}

// UnmarkSpam removes a message from the spam set.
func (s *Service) UnmarkSpam(
	ctx context.Context, id model.ExternalID,
) (bool, error) {
	return s.unmark(ctx, store.MailSetSpam, id)
}

func (s *Service) unmark(
	ctx context.Context, set store.MailSet, id model.ExternalID,
) (bool, error) {
	var removed bool
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		removed, err = tx.RemoveMailID(ctx, set, id.String())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("removing %s from %s: %w", id, set, err)
	}
	return removed, nil
}

// IDs returns the members of a set keyed by id.
func (s *Service) IDs(
	ctx context.Context, set store.MailSet,
) (map[string]store.MailIDEntry, error) {
	var entries []store.MailIDEntry
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.ListMailIDs(ctx, set)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s ids: %w", set, err)
	}

	ids := make(map[string]store.MailIDEntry, len(entries))
	for _, e := range entries {
		ids[e.ID] = e
	}
	return ids, nil
}

// PurgeDeleted forgets deleted ids older than the retention period.
func (s *Service) PurgeDeleted(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.retention)

	var n int
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.PurgeMailIDs(ctx, store.MailSetDeleted, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purging deleted ids: %w", err)
	}

	if n > 0 {
		s.log.InfoContext(ctx, "Purged deleted ids", "count", n,
			"before", cutoff)
	}
	return n, nil
}

// PendingAttachments returns queued attachment save jobs, oldest first.
func (s *Service) PendingAttachments(
	ctx context.Context,
) ([]store.AttachmentJob, error) {
	var jobs []store.AttachmentJob
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		jobs, err = tx.ListAttachmentJobs(ctx)
		return err
	})
	return jobs, err
}

// MarkAttachmentsSaved completes a queued attachment job.
func (s *Service) MarkAttachmentsSaved(ctx context.Context, jobID string) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		return tx.CompleteAttachmentJob(ctx, jobID)
	})
}
