// Package fetcher bridges the sync subsystem to the external mechanism that
// retrieves and moves mail. Every call is scoped to one (identity, folder)
// and either returns a complete normalized batch or a FetchError.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/studiosync/internal/model"
)

// Operation names carried by FetchError.
const (
	OpFetch = "fetch"
	OpMove  = "move"
)

// FetchError is a network, process or parse failure at the bridge boundary.
// It never carries a partial result.
type FetchError struct {
	Op     string
	Folder string
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Folder, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// Fetcher retrieves the current message list of one folder.
type Fetcher interface {
	Fetch(
		ctx context.Context, creds model.Credentials, folder string,
	) ([]model.Message, error)
}

// Mover relocates one message between folders of the external mailbox.
type Mover interface {
	Move(
		ctx context.Context, creds model.Credentials,
		id model.ExternalID, fromFolder, toFolder string,
	) error
}

// Bridge is the full external mailbox collaborator.
type Bridge interface {
	Fetcher
	Mover
}
