package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExternalID is the mailbox-assigned identifier of a message. The bridge may
// emit it as a JSON number (IMAP UID) or a string, so both are accepted.
type ExternalID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding external id: %w", err)
		}
		*id = ExternalID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding external id %s: %w", data, err)
	}
	*id = ExternalID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ExternalID) String() string {
	return string(id)
}

// UIDFromExternalID parses an external id into an IMAP UID.
func UIDFromExternalID(id ExternalID) (uint32, error) {
	uid, err := strconv.ParseUint(strings.TrimSpace(string(id)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message uid %q: %w", id, err)
	}
	return uint32(uid), nil
}

// Attachment holds metadata about a message attachment. Content is never
// carried on the normalized message.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Message is the normalized form of a fetched email. It is immutable once
// fetched.
type Message struct {
	// ExternalID is the raw dedup input. It is only unique within one
	// mailbox, so callers must namespace it by identity.
	ExternalID ExternalID `json:"id"`

	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// Date is kept as the raw header value the bridge reported.
	Date string `json:"date"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// HasAttachments reports whether the message carries any attachment.
func (m Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// AttachmentNames returns the filenames of all attachments in order.
func (m Message) AttachmentNames() []string {
	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		names = append(names, a.Filename)
	}
	return names
}
