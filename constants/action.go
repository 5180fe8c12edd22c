package constants

import "strings"

// ActionKind is the order-side action an accounting link records.
type ActionKind string

const (
	ActionIssuance ActionKind = "ISSUANCE"
	ActionReturn   ActionKind = "RETURN"
)

// MaxAccountingLinks is the number of links an order may carry: one issuance, one return.
const MaxAccountingLinks = 2

func ParseActionKind(s string) (ActionKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ISSUANCE", "TOOLS_ISSUANCE":
		return ActionIssuance, true
	case "RETURN", "TOOLS_RETURN":
		return ActionReturn, true
	}
	return "", false
}
