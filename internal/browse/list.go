package browse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

// PageMode selects how a list view treats fetched pages. The mode is
// fixed at construction; the two behaviors are mutually exclusive per
// instance.
type PageMode int

const (
	// ModePaginated shows one page at a time, replaced on page change.
	ModePaginated PageMode = iota
	// ModeAppend unions every fetched page into the visible list.
	ModeAppend
)

// Fetcher fetches one page of resources for the view's current parent.
type Fetcher func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error)

// Row is one visible resource with its checkbox state. The orchestrator
// may flip Checked directly during a range toggle; the view's checked
// set is then rebuilt with RecomputeChecked.
type Row struct {
	Resource *models.Resource
	Checked  bool
}

// ListView renders one page of child resources of a single kind for the
// current parent. It owns its checked set: the orchestrator reads it but
// mutates it only through CheckAll / RecomputeChecked.
type ListView struct {
	kind     models.Kind
	mode     PageMode
	pageSize int

	fetch  Fetcher
	rows   []*Row
	total  int
	offset int

	checked map[string]struct{}

	onChanged        func()
	onCheckedChanged func()
}

// NewListView creates a list view for one selectable resource kind.
func NewListView(kind models.Kind, mode PageMode, pageSize int) (*ListView, error) {
	if !kind.Selectable() {
		return nil, fmt.Errorf("list view cannot hold %q resources", kind)
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ListView{
		kind:     kind,
		mode:     mode,
		pageSize: pageSize,
		checked:  make(map[string]struct{}),
	}, nil
}

// Kind returns the resource kind this view lists.
func (v *ListView) Kind() models.Kind { return v.kind }

// Mode returns the pagination mode fixed at construction.
func (v *ListView) Mode() PageMode { return v.mode }

// OnChanged registers the callback fired when the visible rows change.
func (v *ListView) OnChanged(fn func()) { v.onChanged = fn }

// OnCheckedChanged registers the callback fired once per aggregate
// checkbox change (never once per row).
func (v *ListView) OnCheckedChanged(fn func()) { v.onCheckedChanged = fn }

func (v *ListView) emitChanged() {
	if v.onChanged != nil {
		v.onChanged()
	}
}

func (v *ListView) emitCheckedChanged() {
	if v.onCheckedChanged != nil {
		v.onCheckedChanged()
	}
}

// SetSource points the view at a new parent. Rows, checked state and
// paging position are reset; nothing is fetched until Fetch.
func (v *ListView) SetSource(fetch Fetcher) {
	v.fetch = fetch
	v.rows = nil
	v.total = 0
	v.offset = 0
	v.checked = make(map[string]struct{})
}

// Fetch loads the page at the current offset. On failure the previous
// rows and checked state stay intact and the error is returned for the
// caller to surface; the view never retries on its own.
func (v *ListView) Fetch(ctx context.Context) error {
	if v.fetch == nil {
		return fmt.Errorf("list view for %s has no source", v.kind)
	}

	page, err := v.fetch(ctx, v.pageSize, v.offset)
	if err != nil {
		return err
	}

	v.total = page.Total
	if v.mode == ModeAppend {
		existing := make(map[string]struct{}, len(v.rows))
		for _, r := range v.rows {
			existing[r.Resource.ID] = struct{}{}
		}
		for _, res := range page.Resources {
			if _, ok := existing[res.ID]; ok {
				continue
			}
			v.rows = append(v.rows, &Row{Resource: res})
		}
	} else {
		v.rows = make([]*Row, 0, len(page.Resources))
		for _, res := range page.Resources {
			row := &Row{Resource: res}
			if _, ok := v.checked[res.ID]; ok {
				row.Checked = true
			}
			v.rows = append(v.rows, row)
		}
		// Rows that paged out stay out of the checked set.
		v.pruneChecked()
	}

	v.emitChanged()
	return nil
}

// More fetches the next page: in append mode the page is unioned into
// the list, in paginated mode it replaces the current page.
func (v *ListView) More(ctx context.Context) error {
	if !v.HasMore() {
		return nil
	}
	v.offset += v.pageSize
	if err := v.Fetch(ctx); err != nil {
		v.offset -= v.pageSize
		return err
	}
	return nil
}

// PrevPage goes back one page in paginated mode.
func (v *ListView) PrevPage(ctx context.Context) error {
	if v.mode != ModePaginated || v.offset == 0 {
		return nil
	}
	prev := v.offset
	v.offset -= v.pageSize
	if v.offset < 0 {
		v.offset = 0
	}
	if err := v.Fetch(ctx); err != nil {
		v.offset = prev
		return err
	}
	return nil
}

// HasMore reports whether more children exist past the visible rows.
func (v *ListView) HasMore() bool {
	if v.mode == ModeAppend {
		return len(v.rows) < v.total
	}
	return v.offset+v.pageSize < v.total
}

// Rows returns the visible rows in display order.
func (v *ListView) Rows() []*Row { return v.rows }

// Len returns the number of visible rows.
func (v *ListView) Len() int { return len(v.rows) }

// Total returns the server-reported child count.
func (v *ListView) Total() int { return v.total }

// Insert adds a freshly created resource locally without a re-fetch,
// keeping name order. The insertion is speculative: it is replaced
// wholesale by the next authoritative fetch and never rolled back.
func (v *ListView) Insert(res *models.Resource) error {
	if res.Kind != v.kind {
		return fmt.Errorf("cannot insert %s into %s list", res.Kind, v.kind)
	}
	v.rows = append(v.rows, &Row{Resource: res})
	sort.SliceStable(v.rows, func(i, j int) bool {
		return strings.ToLower(v.rows[i].Resource.Name) < strings.ToLower(v.rows[j].Resource.Name)
	})
	v.total++
	v.emitChanged()
	return nil
}

// CheckAll replaces the checked set with either all visible ids or
// nothing, and emits a single aggregate notification.
func (v *ListView) CheckAll(checked bool) {
	v.checked = make(map[string]struct{})
	for _, row := range v.rows {
		row.Checked = checked
		if checked {
			v.checked[row.Resource.ID] = struct{}{}
		}
	}
	v.emitCheckedChanged()
}

// SetChecked updates a single row's checkbox.
func (v *ListView) SetChecked(id string, checked bool) {
	for _, row := range v.rows {
		if row.Resource.ID != id {
			continue
		}
		row.Checked = checked
		if checked {
			v.checked[id] = struct{}{}
		} else {
			delete(v.checked, id)
		}
		v.emitCheckedChanged()
		return
	}
}

// RecomputeChecked re-derives the checked set from the row flags. It is
// needed after a range toggle mutated rows directly, bypassing the
// view's own checkbox handling.
func (v *ListView) RecomputeChecked() {
	v.checked = make(map[string]struct{})
	for _, row := range v.rows {
		if row.Checked {
			v.checked[row.Resource.ID] = struct{}{}
		}
	}
	v.emitCheckedChanged()
}

func (v *ListView) pruneChecked() {
	visible := make(map[string]struct{}, len(v.rows))
	for _, row := range v.rows {
		visible[row.Resource.ID] = struct{}{}
	}
	for id := range v.checked {
		if _, ok := visible[id]; !ok {
			delete(v.checked, id)
		}
	}
}

// Checked returns the checked resources in display order.
func (v *ListView) Checked() []*models.Resource {
	out := make([]*models.Resource, 0, len(v.checked))
	for _, row := range v.rows {
		if _, ok := v.checked[row.Resource.ID]; ok {
			out = append(out, row.Resource)
		}
	}
	return out
}

// CheckedCount returns the number of checked rows.
func (v *ListView) CheckedCount() int { return len(v.checked) }
