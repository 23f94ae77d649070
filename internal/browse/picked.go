// Package browse implements the hierarchical resource browser: list
// views, the picked-resources store, the checked-actions projection, and
// the hierarchy orchestrator that ties them together.
package browse

import (
	"fmt"
	"sync"

	"github.com/quarrydata/quarry/internal/metrics"
	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

// PickedResources is the cross-navigation clipboard of resources staged
// for a move or copy. One store is shared by reference across every
// hierarchy instance in the process; it is cleared wholesale and never
// partially mutated from outside Pick.
//
// The min levels are maintained incrementally at pick time rather than
// recomputed by scanning, so they only ever tighten. That is why there
// is no API for removing individual picked resources: the caller either
// adds or clears.
type PickedResources struct {
	mu             sync.Mutex
	folders        idSet
	items          idSet
	minFolderLevel models.AccessLevel
	minItemLevel   models.AccessLevel
	active         bool
	origins        []origin
}

// origin records where a pick batch came from, so a later move can
// decrement the source's cached child counts. Only newly picked ids
// count; re-picking does not inflate the origin.
type origin struct {
	source  *models.Resource
	folders int
	items   int
}

// idSet keeps ids unique while preserving first-pick order.
type idSet struct {
	order []string
	seen  map[string]struct{}
}

func (s *idSet) add(id string) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *idSet) ids() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// NewPickedResources creates an empty store.
func NewPickedResources() *PickedResources {
	return &PickedResources{}
}

// Pick merges the given folders and items into the store. source is the
// parent the batch was checked under. Folder permission is read per
// folder; item permission for the batch is the access level of the
// items' parent folder, since items carry no ACL of their own.
// Re-picking an id is a no-op on the id lists but still tightens the
// min levels with this batch's permissions.
func (p *PickedResources) Pick(source *models.Resource, folders, items []*models.Resource, itemLevel models.AccessLevel) {
	if len(folders) == 0 && len(items) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		p.minFolderLevel = models.AccessAdmin
		p.minItemLevel = models.AccessAdmin
		p.active = true
	}

	newFolders, newItems := 0, 0
	for _, f := range folders {
		if p.folders.add(f.ID) {
			newFolders++
		}
		if f.Access < p.minFolderLevel {
			p.minFolderLevel = f.Access
		}
	}
	if len(items) > 0 {
		for _, it := range items {
			if p.items.add(it.ID) {
				newItems++
			}
		}
		if itemLevel < p.minItemLevel {
			p.minItemLevel = itemLevel
		}
	}

	if source != nil && newFolders+newItems > 0 {
		p.origins = append(p.origins, origin{source: source, folders: newFolders, items: newItems})
	}

	metrics.SetPickedResources(p.countLocked())
}

// DrainOrigins calls fn once per pick origin with the number of picked
// folders and items that came from it. Used after a successful move to
// keep the sources' cached child counts consistent.
func (p *PickedResources) DrainOrigins(fn func(source *models.Resource, folders, items int)) {
	p.mu.Lock()
	origins := p.origins
	p.origins = nil
	p.mu.Unlock()

	for _, o := range origins {
		fn(o.source, o.folders, o.items)
	}
}

// Clear resets the store to empty. It is called on explicit user
// request, after any successful move or copy, and on identity change.
func (p *PickedResources) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.folders = idSet{}
	p.items = idSet{}
	p.minFolderLevel = 0
	p.minItemLevel = 0
	p.active = false
	p.origins = nil
	metrics.SetPickedResources(0)
}

func (p *PickedResources) countLocked() int {
	return len(p.folders.order) + len(p.items.order)
}

// Count returns the total number of picked ids across both kinds.
func (p *PickedResources) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked()
}

// Resources returns the picked ids as a bulk-operation resource map.
func (p *PickedResources) Resources() protocol.ResourceMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := protocol.ResourceMap{}
	m.Add(models.KindFolder, p.folders.ids()...)
	m.Add(models.KindItem, p.items.ids()...)
	return m
}

// MinFolderLevel returns the permission floor over all picked folders.
func (p *PickedResources) MinFolderLevel() models.AccessLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minFolderLevel
}

// MinItemLevel returns the permission floor over all picked items.
func (p *PickedResources) MinItemLevel() models.AccessLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minItemLevel
}

// CopyAllowed reports whether the picked set may be copied into dest.
// Items cannot be copied into a non-folder destination, and copying
// anywhere requires write access on the destination.
func (p *PickedResources) CopyAllowed(dest *models.Resource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.countLocked() == 0 || dest == nil {
		return false
	}
	if len(p.items.order) > 0 && !dest.IsFolder() {
		return false
	}
	return dest.Access >= models.AccessWrite
}

// MoveAllowed reports whether the picked set may be moved into dest.
// Moving removes from the source, so beyond copy rights it requires
// admin on every picked folder and write on every picked item.
func (p *PickedResources) MoveAllowed(dest *models.Resource) bool {
	if !p.CopyAllowed(dest) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minFolderLevel >= models.AccessAdmin && p.minItemLevel >= models.AccessWrite
}

// kindNouns is the explicit pluralization table for Describe. A new
// selectable kind must be added here; English pluralization is not
// assumed to generalize.
var kindNouns = map[models.Kind][2]string{
	models.KindFolder: {"folder", "folders"},
	models.KindItem:   {"item", "items"},
}

func describeKind(kind models.Kind, n int) string {
	nouns := kindNouns[kind]
	if n == 1 {
		return fmt.Sprintf("1 %s", nouns[0])
	}
	return fmt.Sprintf("%d %s", n, nouns[1])
}

// Describe returns a human-readable summary of the picked set, e.g.
// "nothing", "3 folders", or "2 folders and 5 items".
func (p *PickedResources) Describe() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	nf, ni := len(p.folders.order), len(p.items.order)
	switch {
	case nf == 0 && ni == 0:
		return "nothing"
	case ni == 0:
		return describeKind(models.KindFolder, nf)
	case nf == 0:
		return describeKind(models.KindItem, ni)
	}
	return describeKind(models.KindFolder, nf) + " and " + describeKind(models.KindItem, ni)
}
