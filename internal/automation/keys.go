package automation

import "github.com/nhle/studiosync/internal/model"

// Rule names, also used as log attributes.
const (
	RuleKitDigital = "kit_digital"
	RuleRouted     = "routed"
)

// KitLedgerKey namespaces the global Kit-Digital rule. It is
// identity-independent: the notification is handled once whichever
// mailbox sees it first.
func KitLedgerKey(id model.ExternalID) string {
	return "auto_kit_" + id.String()
}

// RoutedLedgerKey namespaces the identity-routed rule by mailbox.
func RoutedLedgerKey(identity string, id model.ExternalID) string {
	return "team_auto_" + identity + "_" + id.String()
}
