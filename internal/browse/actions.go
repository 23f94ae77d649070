package browse

import "github.com/quarrydata/quarry/pkg/models"

// Projection is everything the checked-actions menu needs to decide
// which bulk actions are available. It is computed by the hierarchy and
// consumed by front-ends; the menu itself holds no state and issues no
// network calls.
type Projection struct {
	MinFolderLevel models.AccessLevel
	MinItemLevel   models.AccessLevel
	FolderCount    int
	ItemCount      int

	PickedCount       int
	PickedCopyAllowed bool
	PickedMoveAllowed bool
	PickedDesc        string
}

// CheckedCount returns the number of checked rows across both lists.
func (p Projection) CheckedCount() int {
	return p.FolderCount + p.ItemCount
}

// Actions is the set of enabled bulk actions derived from a Projection.
type Actions struct {
	Download    bool
	Pick        bool
	CopyHere    bool
	MoveHere    bool
	ClearPicked bool
	Delete      bool
}

// ComputeActions derives the enabled actions. Deleting requires admin
// over every checked folder and write over every checked item.
func ComputeActions(p Projection) Actions {
	anyChecked := p.CheckedCount() > 0

	deleteAllowed := anyChecked
	if p.FolderCount > 0 && p.MinFolderLevel < models.AccessAdmin {
		deleteAllowed = false
	}
	if p.ItemCount > 0 && p.MinItemLevel < models.AccessWrite {
		deleteAllowed = false
	}

	return Actions{
		Download:    anyChecked,
		Pick:        anyChecked,
		CopyHere:    p.PickedCopyAllowed,
		MoveHere:    p.PickedMoveAllowed,
		ClearPicked: p.PickedCount > 0,
		Delete:      deleteAllowed,
	}
}
