package model

// Credentials are the connection secrets for one mailbox identity. They are
// resolved on demand and never persisted by this program.
type Credentials struct {
	Identity string
	Username string
	Secret   string

	// Host and Port locate the IMAP server. Both may be empty, in which
	// case the bridge falls back to its own defaults.
	Host string
	Port string
}
