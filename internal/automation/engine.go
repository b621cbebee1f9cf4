// Package automation turns fetched mail batches into board changes. Each
// message is evaluated against two independent rules whose decisions are
// recorded in the automation ledger so they never run twice.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nhle/studiosync/internal/activity"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
)

const (
	// commentExcerptLen bounds the body excerpt in link comments.
	commentExcerptLen = 400

	// descriptionExcerptLen bounds the body excerpt on new cards.
	descriptionExcerptLen = 1000

	// systemAuthor signs automated comments.
	systemAuthor = "SISTEMA"

	labelKitDigital = "Kit Digital"
	labelAutomated  = "Automatitzat"
	labelAutoInbox  = "Entrada Automàtica"
)

var tracer = otel.Tracer("github.com/nhle/studiosync/internal/automation")

// Outcome is what a rule did with one message.
type Outcome int

const (
	// OutcomeSkipped means the ledger already held the rule's key.
	OutcomeSkipped Outcome = iota

	// OutcomeCreated means a new card was created.
	OutcomeCreated

	// OutcomeLinked means the message was attached to an existing card.
	OutcomeLinked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCreated:
		return "created"
	case OutcomeLinked:
		return "linked"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision records what one rule did for one message.
type Decision struct {
	Rule       string
	ExternalID model.ExternalID
	LedgerKey  string
	Outcome    Outcome
	CardID     string

	// AttachmentsQueued is set when the message's attachments were
	// handed to the save queue.
	AttachmentsQueued bool
}

// Result summarizes one processed batch.
type Result struct {
	Decisions []Decision

	// Failed counts rule applications that hit a store error. Their
	// ledger keys are not recorded, so the next batch retries them.
	Failed int
}

// Count returns how many decisions had the given outcome.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// Config configures an Engine.
type Config struct {
	// Store holds cards, the ledger and the activity log.
	Store store.Store

	// KitDigital configures the global government-notification rule.
	KitDigital model.KitDigitalConfig

	// Routing maps identities to their destination board.
	Routing map[string]model.RouteConfig

	Log *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine applies automation rules to fetched batches. It is safe for
// concurrent use: every rule application runs in its own serialized store
// transaction, so two batches cannot both pass the ledger check for the
// same key.
type Engine struct {
	store   store.Store
	kit     model.KitDigitalConfig
	routing map[string]model.RouteConfig
	log     *slog.Logger
	clock   func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	routing := make(map[string]model.RouteConfig, len(cfg.Routing))
	for id, r := range cfg.Routing {
		routing[strings.ToLower(id)] = r
	}

	return &Engine{
		store:   cfg.Store,
		kit:     cfg.KitDigital,
		routing: routing,
		log:     log,
		clock:   clock,
	}
}

// EnsureBoards creates every board the rules write to, with its canonical
// columns.
func (e *Engine) EnsureBoards(ctx context.Context) error {
	boards := map[string]string{e.kit.BoardID: "Kit Digital"}
	for _, r := range e.routing {
		if _, ok := boards[r.BoardID]; !ok {
			boards[r.BoardID] = r.Name
		}
	}

	return e.store.Update(ctx, func(tx store.Tx) error {
		for id, title := range boards {
			board := model.Board{
				ID:      id,
				Title:   title,
				Columns: model.CanonicalColumns(id),
			}
			if e.kit.ColumnID != "" && id == e.kit.BoardID &&
				e.kit.ColumnID != model.TodoColumnID(id) {

				board.Columns = append(board.Columns, model.Column{
					ID: e.kit.ColumnID, Title: "Kit Digital",
				})
			}
			if err := tx.EnsureBoard(ctx, board); err != nil {
				return err
			}
		}
		return nil
	})
}

// Process evaluates a batch fetched for identity from folder. Messages are
// handled in the order given; for each one the Kit-Digital rule runs before
// the routed rule. A failure on one message never stops the batch.
func (e *Engine) Process(
	ctx context.Context, identity, folder string, msgs []model.Message,
) Result {
	ctx, span := tracer.Start(ctx, "automation.Process", trace.WithAttributes(
		attribute.String("identity", identity),
		attribute.String("folder", folder),
		attribute.Int("messages", len(msgs)),
	))
	defer span.End()

	route, routed := e.routing[strings.ToLower(identity)]

	var res Result
	for _, msg := range msgs {
		if msg.ExternalID == "" {
			e.log.WarnContext(ctx, "Skipping message without id",
				"identity", identity, "folder", folder,
				"subject", msg.Subject)
			continue
		}

		if e.isKitDigital(msg) {
			d, err := e.applyKitDigital(ctx, identity, msg)
			res.record(d, err)
			if err != nil {
				e.log.ErrorContext(ctx, "Kit Digital rule failed",
					"identity", identity, "external_id", msg.ExternalID,
					"err", err)
			}
		}

		if routed {
			d, err := e.applyRouted(ctx, identity, folder, route, msg)
			res.record(d, err)
			if err != nil {
				e.log.ErrorContext(ctx, "Routed rule failed",
					"identity", identity, "external_id", msg.ExternalID,
					"err", err)
			}
		}
	}

	if res.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d rule failures", res.Failed))
	}
	span.SetAttributes(
		attribute.Int("created", res.Count(OutcomeCreated)),
		attribute.Int("linked", res.Count(OutcomeLinked)),
	)

	return res
}

func (r *Result) record(d Decision, err error) {
	if err != nil {
		r.Failed++
		return
	}
	r.Decisions = append(r.Decisions, d)
}

// isKitDigital reports whether the sender is the government notification
// address.
func (e *Engine) isKitDigital(msg model.Message) bool {
	sender := strings.ToLower(strings.TrimSpace(e.kit.Sender))
	if sender == "" {
		return false
	}
	return strings.Contains(strings.ToLower(msg.From), sender)
}

// applyKitDigital creates a card on the Kit-Digital board unless the
// message was already handled.
func (e *Engine) applyKitDigital(
	ctx context.Context, identity string, msg model.Message,
) (Decision, error) {
	d := Decision{
		Rule:       RuleKitDigital,
		ExternalID: msg.ExternalID,
		LedgerKey:  KitLedgerKey(msg.ExternalID),
	}

	now := e.clock().UTC()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		done, err := tx.HasLedgerKey(ctx, d.LedgerKey)
		if err != nil {
			return err
		}
		if done {
			d.Outcome = OutcomeSkipped
			return nil
		}

		subject := msg.Subject
		if subject == "" {
			subject = fallbackTitle(msg.From)
		}

		card, err := tx.CreateCard(ctx, model.Card{
			BoardID:  e.kit.BoardID,
			ColumnID: e.kit.ColumnID,
			Title:    e.kit.TitlePrefix + subject,
			DescriptionBlocks: []model.DescriptionBlock{{
				ID:   "desc_1",
				Type: "text",
				Text: fmt.Sprintf("De: %s\n\n%s", msg.From,
					excerpt(msg.Body, descriptionExcerptLen)),
			}},
			Labels:          []string{labelKitDigital, labelAutomated},
			CreatedAt:       now,
			SourceMessageID: msg.ExternalID.String(),
			SourceEmailDate: msg.Date,
			ResponsibleID:   identity,
		})
		if err != nil {
			return err
		}

		if err := tx.RecordLedgerKey(ctx, d.LedgerKey); err != nil {
			return err
		}

		d.Outcome = OutcomeCreated
		d.CardID = card.ID

		return tx.AppendActivity(ctx, activity.NewEntry(
			model.ActivityCard,
			fmt.Sprintf("Kit Digital: nova fitxa %q", card.Title),
			activity.SystemActor, now,
		))
	})
	if err != nil {
		return Decision{}, fmt.Errorf("applying kit digital rule to %s: %w",
			msg.ExternalID, err)
	}

	if d.Outcome == OutcomeCreated {
		e.log.InfoContext(ctx, "Created Kit Digital card",
			"identity", identity, "external_id", msg.ExternalID,
			"card_id", d.CardID)
	}

	return d, nil
}

// applyRouted links the message to a matching card or creates a new one on
// the identity's board.
func (e *Engine) applyRouted(
	ctx context.Context, identity, folder string,
	route model.RouteConfig, msg model.Message,
) (Decision, error) {
	d := Decision{
		Rule:       RuleRouted,
		ExternalID: msg.ExternalID,
		LedgerKey:  RoutedLedgerKey(identity, msg.ExternalID),
	}

	now := e.clock().UTC()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		done, err := tx.HasLedgerKey(ctx, d.LedgerKey)
		if err != nil {
			return err
		}
		if done {
			d.Outcome = OutcomeSkipped
			return nil
		}

		cards, err := tx.ListCards(ctx)
		if err != nil {
			return err
		}

		var entry model.ActivityEntry
		if card, ok := MatchCard(cards, msg.Subject); ok {
			err := e.linkToCard(ctx, tx, card, msg, now)
			if err != nil {
				return err
			}
			d.Outcome = OutcomeLinked
			d.CardID = card.ID
			entry = activity.NewEntry(model.ActivityMail, fmt.Sprintf(
				"Correu de %s enllaçat a %q i mogut a Revisió",
				msg.From, card.Title,
			), route.Name, now)
		} else {
			card, err := tx.CreateCard(ctx, newRoutedCard(
				identity, route, msg, now,
			))
			if err != nil {
				return err
			}
			d.Outcome = OutcomeCreated
			d.CardID = card.ID
			entry = activity.NewEntry(model.ActivityCard, fmt.Sprintf(
				"Nova fitxa des de correu: %q", card.Title,
			), route.Name, now)
		}

		if msg.HasAttachments() {
			queued, err := tx.EnqueueAttachments(ctx, store.AttachmentJob{
				Identity:   identity,
				Folder:     folder,
				ExternalID: msg.ExternalID.String(),
				Filenames:  msg.AttachmentNames(),
				CreatedAt:  now,
			})
			if err != nil {
				return err
			}
			d.AttachmentsQueued = queued
		}

		if err := tx.RecordLedgerKey(ctx, d.LedgerKey); err != nil {
			return err
		}

		return tx.AppendActivity(ctx, entry)
	})
	if err != nil {
		return Decision{}, fmt.Errorf("applying routed rule for %s to %s: %w",
			identity, msg.ExternalID, err)
	}

	if d.Outcome != OutcomeSkipped {
		e.log.InfoContext(ctx, "Routed email",
			"identity", identity, "external_id", msg.ExternalID,
			"outcome", d.Outcome, "card_id", d.CardID)
	}

	return d, nil
}

// linkToCard comments on an existing card and moves it to its board's
// revision column.
func (e *Engine) linkToCard(
	ctx context.Context, tx store.Tx, card model.Card,
	msg model.Message, now time.Time,
) error {
	err := tx.AppendComment(ctx, card.ID, model.Comment{
		Author: systemAuthor,
		Text: fmt.Sprintf("CORREU RELACIONAT:\nDe: %s\nAssumpte: %s\n\n%s",
			msg.From, msg.Subject, excerpt(msg.Body, commentExcerptLen)),
		Date:    now,
		IsEmail: true,
	})
	if err != nil {
		return err
	}

	return tx.MoveCard(ctx, card.ID, model.RevisionColumnID(card.BoardID))
}

// newRoutedCard builds the card created when no existing card matches.
func newRoutedCard(
	identity string, route model.RouteConfig, msg model.Message,
	now time.Time,
) model.Card {
	title := msg.Subject
	if strings.TrimSpace(title) == "" {
		title = fallbackTitle(msg.From)
	}

	return model.Card{
		BoardID:  route.BoardID,
		ColumnID: model.TodoColumnID(route.BoardID),
		Title:    title,
		DescriptionBlocks: []model.DescriptionBlock{{
			ID:   "desc_1",
			Type: "text",
			Text: fmt.Sprintf("Correu de: %s\n\n%s", msg.From,
				excerpt(msg.Body, descriptionExcerptLen)),
		}},
		Labels:          []string{route.Name, labelAutoInbox},
		CreatedAt:       now,
		SourceMessageID: msg.ExternalID.String(),
		SourceEmailDate: msg.Date,
		ResponsibleID:   identity,
	}
}

func fallbackTitle(from string) string {
	return "Email from " + from
}
