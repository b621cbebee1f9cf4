package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nhle/studiosync/internal/model"
)

// MoveCall records one Move request seen by a FakeBridge.
type MoveCall struct {
	Identity string
	ID       model.ExternalID
	From     string
	To       string
}

// FakeBridge is an in-memory mailbox keyed by username and folder. It
// satisfies the fetcher Bridge interface.
type FakeBridge struct {
	mu        sync.Mutex
	folders   map[string][]model.Message
	failures  map[string]error
	fetches   map[string]int
	moves     []MoveCall
	moveError error
}

// NewFakeBridge creates an empty fake mailbox.
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{
		folders:  make(map[string][]model.Message),
		failures: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

func bridgeKey(user, folder string) string {
	return user + "/" + folder
}

// SetFolder replaces the contents of a folder.
func (b *FakeBridge) SetFolder(user, folder string, msgs ...model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folders[bridgeKey(user, folder)] = slices.Clone(msgs)
}

// FailFetch makes fetches of a folder return err until cleared with nil.
func (b *FakeBridge) FailFetch(user, folder string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, bridgeKey(user, folder))
		return
	}
	b.failures[bridgeKey(user, folder)] = err
}

// FailMoves makes every Move return err.
func (b *FakeBridge) FailMoves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveError = err
}

// Fetches returns how many times a folder was fetched.
func (b *FakeBridge) Fetches(user, folder string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches[bridgeKey(user, folder)]
}

// TotalFetches returns the number of fetches across all folders.
func (b *FakeBridge) TotalFetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.fetches {
		n += c
	}
	return n
}

// Moves returns the recorded Move calls.
func (b *FakeBridge) Moves() []MoveCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.moves)
}

// Fetch returns the folder contents for the credentials' username.
func (b *FakeBridge) Fetch(
	ctx context.Context, creds model.Credentials, folder string,
) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := bridgeKey(creds.Username, folder)
	b.fetches[key]++

	if err := b.failures[key]; err != nil {
		return nil, err
	}
	return slices.Clone(b.folders[key]), nil
}

// Move relocates a message between folders of the credentials' mailbox.
func (b *FakeBridge) Move(
	ctx context.Context, creds model.Credentials,
	id model.ExternalID, from, to string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.moves = append(b.moves, MoveCall{
		Identity: creds.Identity, ID: id, From: from, To: to,
	})
	if b.moveError != nil {
		return b.moveError
	}

	src := bridgeKey(creds.Username, from)
	idx := slices.IndexFunc(b.folders[src], func(m model.Message) bool {
		return m.ExternalID == id
	})
	if idx < 0 {
		return fmt.Errorf("message %s not in %s", id, from)
	}

	msg := b.folders[src][idx]
	b.folders[src] = slices.Delete(b.folders[src], idx, idx+1)

	dst := bridgeKey(creds.Username, to)
	b.folders[dst] = append([]model.Message{msg}, b.folders[dst]...)

	return nil
}
