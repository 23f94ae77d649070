package browse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

// pageFetcher serves fixed resources in pages.
func pageFetcher(resources []*models.Resource) Fetcher {
	return func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
		end := offset + limit
		if end > len(resources) {
			end = len(resources)
		}
		if offset > len(resources) {
			offset = len(resources)
		}
		return &protocol.ListResponse{
			Resources: resources[offset:end],
			Total:     len(resources),
			Offset:    offset,
			Limit:     limit,
		}, nil
	}
}

func folders(n int) []*models.Resource {
	out := make([]*models.Resource, n)
	for i := range out {
		out[i] = folder(fmt.Sprintf("f%02d", i), models.AccessAdmin)
	}
	return out
}

func TestNewListViewRejectsNonSelectable(t *testing.T) {
	if _, err := NewListView(models.KindCollection, ModePaginated, 10); err == nil {
		t.Fatal("expected error for non-selectable kind")
	}
}

func TestPaginatedReplacesPage(t *testing.T) {
	v, err := NewListView(models.KindFolder, ModePaginated, 2)
	if err != nil {
		t.Fatal(err)
	}
	v.SetSource(pageFetcher(folders(5)))

	if err := v.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if v.Len() != 2 || v.Total() != 5 {
		t.Fatalf("len=%d total=%d, want 2 and 5", v.Len(), v.Total())
	}
	if !v.HasMore() {
		t.Fatal("expected more pages")
	}

	if err := v.More(context.Background()); err != nil {
		t.Fatalf("more: %v", err)
	}
	if v.Len() != 2 {
		t.Errorf("paginated More should replace the page, len=%d", v.Len())
	}
	if v.Rows()[0].Resource.ID != "f02" {
		t.Errorf("first row = %s, want f02", v.Rows()[0].Resource.ID)
	}

	if err := v.PrevPage(context.Background()); err != nil {
		t.Fatalf("prev: %v", err)
	}
	if v.Rows()[0].Resource.ID != "f00" {
		t.Errorf("first row after prev = %s, want f00", v.Rows()[0].Resource.ID)
	}
}

func TestAppendUnionsPages(t *testing.T) {
	v, err := NewListView(models.KindItem, ModeAppend, 2)
	if err != nil {
		t.Fatal(err)
	}
	items := []*models.Resource{item("i0"), item("i1"), item("i2")}
	v.SetSource(pageFetcher(items))

	if err := v.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := v.More(context.Background()); err != nil {
		t.Fatalf("more: %v", err)
	}
	if v.Len() != 3 {
		t.Fatalf("len=%d, want 3", v.Len())
	}
	if v.HasMore() {
		t.Error("no more pages expected")
	}

	// A repeated id in a later page is not duplicated.
	v2, _ := NewListView(models.KindItem, ModeAppend, 2)
	v2.SetSource(func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
		return &protocol.ListResponse{Resources: items, Total: 3}, nil
	})
	v2.Fetch(context.Background())
	v2.Fetch(context.Background())
	if v2.Len() != 3 {
		t.Errorf("union fetch duplicated rows, len=%d", v2.Len())
	}
}

func TestFetchFailureKeepsState(t *testing.T) {
	v, _ := NewListView(models.KindFolder, ModePaginated, 10)
	good := pageFetcher(folders(3))
	fail := false
	v.SetSource(func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return good(ctx, limit, offset)
	})

	if err := v.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	v.SetChecked("f01", true)

	fail = true
	if err := v.Fetch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if v.Len() != 3 {
		t.Errorf("rows lost on failed fetch, len=%d", v.Len())
	}
	if v.CheckedCount() != 1 {
		t.Errorf("checked set lost on failed fetch, count=%d", v.CheckedCount())
	}
}

func TestCheckAllEmitsOnce(t *testing.T) {
	v, _ := NewListView(models.KindFolder, ModePaginated, 10)
	v.SetSource(pageFetcher(folders(4)))
	v.Fetch(context.Background())

	events := 0
	v.OnCheckedChanged(func() { events++ })

	v.CheckAll(true)
	if events != 1 {
		t.Errorf("CheckAll emitted %d events, want 1", events)
	}
	if v.CheckedCount() != 4 {
		t.Errorf("checked=%d, want 4", v.CheckedCount())
	}

	v.CheckAll(false)
	if v.CheckedCount() != 0 {
		t.Errorf("checked=%d after uncheck all, want 0", v.CheckedCount())
	}
	if events != 2 {
		t.Errorf("events=%d, want 2", events)
	}
}

func TestRecomputeChecked(t *testing.T) {
	v, _ := NewListView(models.KindFolder, ModePaginated, 10)
	v.SetSource(pageFetcher(folders(3)))
	v.Fetch(context.Background())

	// Simulate a range toggle flipping row flags directly.
	v.Rows()[0].Checked = true
	v.Rows()[2].Checked = true
	if v.CheckedCount() != 0 {
		t.Fatal("checked set should not update before RecomputeChecked")
	}

	v.RecomputeChecked()
	if v.CheckedCount() != 2 {
		t.Errorf("checked=%d after recompute, want 2", v.CheckedCount())
	}
	got := v.Checked()
	if len(got) != 2 || got[0].ID != "f00" || got[1].ID != "f02" {
		t.Errorf("Checked() = %v", got)
	}
}

func TestInsertKeepsOrderAndReports(t *testing.T) {
	v, _ := NewListView(models.KindFolder, ModePaginated, 10)
	v.SetSource(pageFetcher([]*models.Resource{
		folder("alpha", models.AccessAdmin),
		folder("delta", models.AccessAdmin),
	}))
	v.Fetch(context.Background())

	changes := 0
	v.OnChanged(func() { changes++ })

	if err := v.Insert(folder("bravo", models.AccessAdmin)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if changes != 1 {
		t.Errorf("Insert emitted %d change events, want 1", changes)
	}
	if v.Total() != 3 {
		t.Errorf("total=%d, want 3", v.Total())
	}

	names := []string{}
	for _, r := range v.Rows() {
		names = append(names, r.Resource.Name)
	}
	want := []string{"alpha", "bravo", "delta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("rows = %v, want %v", names, want)
		}
	}

	if err := v.Insert(item("i1")); err == nil {
		t.Error("inserting an item into a folder list must fail")
	}
}
