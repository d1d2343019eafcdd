package manager

import "github.com/starford/rocache/internal/models"

// Action is what an update cycle does with one crate path.
type Action int

const (
	// ActionInsertValid builds a fresh valid record and extracts artifacts.
	ActionInsertValid Action = iota
	// ActionInsertInvalid builds a fresh invalid record.
	ActionInsertInvalid
	// ActionKeep carries the previous record over unchanged.
	ActionKeep
	// ActionReextract rebuilds a valid record whose metadata changed.
	ActionReextract
	// ActionInvalidate replaces a valid record with an invalid one.
	ActionInvalidate
	// ActionReplaceInvalid rebuilds an invalid record whose metadata changed.
	ActionReplaceInvalid
	// ActionDrop forgets a crate that is no longer found on disk.
	ActionDrop
)

var actionNames = [...]string{
	ActionInsertValid:    "insert_valid",
	ActionInsertInvalid:  "insert_invalid",
	ActionKeep:           "keep",
	ActionReextract:      "reextract",
	ActionInvalidate:     "invalidate",
	ActionReplaceInvalid: "replace_invalid",
	ActionDrop:           "drop",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Actions lists every action in declaration order.
func Actions() []Action {
	return []Action{
		ActionInsertValid, ActionInsertInvalid, ActionKeep, ActionReextract,
		ActionInvalidate, ActionReplaceInvalid, ActionDrop,
	}
}

// Decide returns the action for a scanned path given its previous record
// (nil when the path is new), the current validity and metadata digest.
func Decide(prev *models.CrateRecord, valid bool, digest string) Action {
	if prev == nil {
		if valid {
			return ActionInsertValid
		}
		return ActionInsertInvalid
	}
	same := prev.Digest == digest
	switch {
	case prev.Valid && valid && same:
		return ActionKeep
	case prev.Valid && valid:
		return ActionReextract
	case prev.Valid:
		return ActionInvalidate
	case valid:
		return ActionInsertValid
	case same:
		return ActionKeep
	default:
		return ActionReplaceInvalid
	}
}
