package browse

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/quarrydata/quarry/internal/events"
	"github.com/quarrydata/quarry/internal/logging"
	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"

	"go.uber.org/zap"
)

// API is the slice of the REST client the hierarchy needs.
type API interface {
	ListFolders(ctx context.Context, parent models.ParentRef, limit, offset int) (*protocol.ListResponse, error)
	ListItems(ctx context.Context, folderID string, limit, offset int) (*protocol.ListResponse, error)
	Move(ctx context.Context, resources protocol.ResourceMap, parent models.ParentRef) (*protocol.MoveResult, error)
	Copy(ctx context.Context, resources protocol.ResourceMap, parent models.ParentRef) (*protocol.MoveResult, error)
	Delete(ctx context.Context, resources protocol.ResourceMap) (*protocol.DeleteResult, error)
	Download(ctx context.Context, resources protocol.ResourceMap) (io.ReadCloser, error)
	Upload(ctx context.Context, folderID, name string, content io.Reader, size int64) (*protocol.UploadResponse, error)
	CancelFetches()
}

// Confirmer asks the user to confirm a destructive action. It must
// return true exactly when the user confirmed.
type Confirmer interface {
	Confirm(ctx context.Context, text, yesText string) (bool, error)
}

// Router reflects the current parent in the application route.
type Router interface {
	Navigate(route string, trigger bool)
}

// Options configures a Hierarchy.
type Options struct {
	Client  API
	Picked  *PickedResources // shared across hierarchy instances
	Bus     *events.Bus
	Confirm Confirmer
	Router  Router // optional; ignored when Routing is false
	Routing bool

	PageSize  int
	ItemsMode PageMode // fixed for the lifetime of the hierarchy
}

// Hierarchy orchestrates the resource browser for one displayed parent:
// breadcrumbs, the folder and item lists, checkbox coordination, and
// every bulk operation. All methods are meant to be driven from a single
// UI goroutine; only the picked store is shared wider.
type Hierarchy struct {
	client  API
	picked  *PickedResources
	bus     *events.Bus
	confirm Confirmer
	router  Router
	routing bool

	path    []*models.Resource
	folders *ListView
	items   *ListView

	lastToggle int
	busy       atomic.Bool

	onUpdate func(Projection)

	loginCh chan events.Event
	done    chan struct{}
}

// New creates a hierarchy rooted at the given resource. The root must be
// able to hold children.
func New(root *models.Resource, opts Options) (*Hierarchy, error) {
	if root == nil {
		return nil, fmt.Errorf("hierarchy needs a root resource")
	}
	if root.Kind == models.KindItem {
		return nil, fmt.Errorf("cannot browse into an item")
	}
	if opts.Client == nil || opts.Picked == nil || opts.Bus == nil {
		return nil, fmt.Errorf("hierarchy needs a client, a picked store and a bus")
	}

	folders, err := NewListView(models.KindFolder, ModeAppend, opts.PageSize)
	if err != nil {
		return nil, err
	}
	items, err := NewListView(models.KindItem, opts.ItemsMode, opts.PageSize)
	if err != nil {
		return nil, err
	}

	h := &Hierarchy{
		client:     opts.Client,
		picked:     opts.Picked,
		bus:        opts.Bus,
		confirm:    opts.Confirm,
		router:     opts.Router,
		routing:    opts.Routing,
		path:       []*models.Resource{root},
		folders:    folders,
		items:      items,
		lastToggle: -1,
		done:       make(chan struct{}),
	}
	folders.OnCheckedChanged(h.updateChecked)
	items.OnCheckedChanged(h.updateChecked)

	h.loginCh = opts.Bus.Subscribe()
	go h.watchLogin()

	h.pointListsAtParent()
	return h, nil
}

// Close detaches the hierarchy from the bus.
func (h *Hierarchy) Close() {
	select {
	case <-h.done:
		return
	default:
	}
	close(h.done)
	h.bus.Unsubscribe(h.loginCh)
}

// watchLogin clears the picked store whenever the viewer identity
// changes. Picked resources must never leak across identities.
func (h *Hierarchy) watchLogin() {
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-h.loginCh:
			if !ok {
				return
			}
			if ev.Type == events.EventLogin {
				h.picked.Clear()
			}
		}
	}
}

// OnUpdate registers the callback fired with a fresh projection after
// every change that can affect the available actions.
func (h *Hierarchy) OnUpdate(fn func(Projection)) { h.onUpdate = fn }

// Parent returns the currently displayed parent resource.
func (h *Hierarchy) Parent() *models.Resource {
	return h.path[len(h.path)-1]
}

// Breadcrumbs returns the ancestor chain from root to the current
// parent.
func (h *Hierarchy) Breadcrumbs() []*models.Resource {
	out := make([]*models.Resource, len(h.path))
	copy(out, h.path)
	return out
}

// Folders returns the folder list view.
func (h *Hierarchy) Folders() *ListView { return h.folders }

// Items returns the item list view.
func (h *Hierarchy) Items() *ListView { return h.items }

// Busy reports whether a bulk operation is in flight. Front-ends use it
// to disable the triggering controls; it is not a hard lock. Safe to
// read from the UI goroutine while the operation runs elsewhere.
func (h *Hierarchy) Busy() bool { return h.busy.Load() }

func (h *Hierarchy) pointListsAtParent() {
	parent := h.Parent()

	h.folders.SetSource(func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
		return h.client.ListFolders(ctx, models.ParentRef{Kind: parent.Kind, ID: parent.ID}, limit, offset)
	})
	if parent.IsFolder() {
		h.items.SetSource(func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
			return h.client.ListItems(ctx, parent.ID, limit, offset)
		})
	} else {
		// Items live only inside folders.
		h.items.SetSource(func(ctx context.Context, limit, offset int) (*protocol.ListResponse, error) {
			return &protocol.ListResponse{}, nil
		})
	}
	h.lastToggle = -1
}

// Load fetches both lists for the current parent. A failed fetch leaves
// the previous rows intact and is surfaced on the alert bus.
func (h *Hierarchy) Load(ctx context.Context) error {
	if err := h.folders.Fetch(ctx); err != nil {
		h.alertError("failed to list folders", err)
		return err
	}
	if err := h.items.Fetch(ctx); err != nil {
		h.alertError("failed to list items", err)
		return err
	}
	h.updateChecked()
	return nil
}

func (h *Hierarchy) navigate(ctx context.Context) error {
	// Abandon fetches that belong to the view being left.
	h.client.CancelFetches()
	h.pointListsAtParent()
	err := h.Load(ctx)
	h.setRoute()
	return err
}

func (h *Hierarchy) setRoute() {
	if !h.routing || h.router == nil {
		return
	}
	parent := h.Parent()
	h.router.Navigate(fmt.Sprintf("%s/%s", parent.Kind, parent.ID), false)
}

// Descend pushes a folder onto the breadcrumb path and displays it.
func (h *Hierarchy) Descend(ctx context.Context, folder *models.Resource) error {
	if !folder.IsFolder() {
		return fmt.Errorf("cannot descend into %s %q", folder.Kind, folder.Name)
	}
	h.path = append(h.path, folder)
	return h.navigate(ctx)
}

// Ascend pops the breadcrumb path. At the root it is a no-op.
func (h *Hierarchy) Ascend(ctx context.Context) error {
	if len(h.path) <= 1 {
		return nil
	}
	h.path = h.path[:len(h.path)-1]
	return h.navigate(ctx)
}

// JumpTo truncates the breadcrumb path to index inclusive and displays
// that ancestor.
func (h *Hierarchy) JumpTo(ctx context.Context, index int) error {
	if index < 0 || index >= len(h.path) {
		return fmt.Errorf("breadcrumb index %d out of range", index)
	}
	h.path = h.path[:index+1]
	return h.navigate(ctx)
}

// RowCount returns the size of the combined folder+item row index space.
func (h *Hierarchy) RowCount() int {
	return h.folders.Len() + h.items.Len()
}

// rowAt resolves an index in the combined row space: folder rows first,
// then item rows.
func (h *Hierarchy) rowAt(index int) (*Row, *ListView) {
	if index < h.folders.Len() {
		return h.folders.Rows()[index], h.folders
	}
	return h.items.Rows()[index-h.folders.Len()], h.items
}

// ToggleRow handles a checkbox click in the combined row space. With
// shift held and a prior toggle in this hierarchy's lifetime, every row
// between the previous and current index (inclusive) is set to the
// target's new state, crossing the folder/item boundary as one
// contiguous range; both views then re-derive their checked sets.
func (h *Hierarchy) ToggleRow(index int, shiftHeld bool) error {
	if index < 0 || index >= h.RowCount() {
		return fmt.Errorf("row index %d out of range", index)
	}

	if !shiftHeld || h.lastToggle < 0 || h.lastToggle >= h.RowCount() {
		row, view := h.rowAt(index)
		view.SetChecked(row.Resource.ID, !row.Checked)
		h.lastToggle = index
		return nil
	}

	target, _ := h.rowAt(index)
	state := !target.Checked

	lo, hi := h.lastToggle, index
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		row, _ := h.rowAt(i)
		row.Checked = state
	}
	h.lastToggle = index

	// The range was applied by direct row manipulation, bypassing the
	// views' own checkbox handling.
	h.folders.RecomputeChecked()
	h.items.RecomputeChecked()
	return nil
}

// CheckAll checks or unchecks every visible row in both lists.
func (h *Hierarchy) CheckAll(checked bool) {
	h.folders.CheckAll(checked)
	h.items.CheckAll(checked)
}

// updateChecked recomputes the projection and notifies the front-end.
func (h *Hierarchy) updateChecked() {
	if h.onUpdate != nil {
		h.onUpdate(h.Projection())
	}
}

// Projection computes the current checked-actions projection. The
// folder scan short-circuits once the running minimum reaches read:
// nothing below read influences the enabled-action logic, so further
// scanning cannot change the outcome.
func (h *Hierarchy) Projection() Projection {
	parent := h.Parent()

	checkedFolders := h.folders.Checked()
	minFolder := models.AccessAdmin
	for _, f := range checkedFolders {
		if f.Access < minFolder {
			minFolder = f.Access
		}
		if minFolder <= models.AccessRead {
			break
		}
	}

	checkedItems := h.items.CheckedCount()
	minItem := models.AccessAdmin
	if checkedItems > 0 {
		// Items carry no ACL of their own; their level is the parent
		// folder's.
		minItem = parent.Access
	}

	return Projection{
		MinFolderLevel:    minFolder,
		MinItemLevel:      minItem,
		FolderCount:       len(checkedFolders),
		ItemCount:         checkedItems,
		PickedCount:       h.picked.Count(),
		PickedCopyAllowed: h.picked.CopyAllowed(parent),
		PickedMoveAllowed: h.picked.MoveAllowed(parent),
		PickedDesc:        h.picked.Describe(),
	}
}

// PickChecked stages the checked resources in the picked store. The
// checkboxes stay checked.
func (h *Hierarchy) PickChecked() {
	parent := h.Parent()
	h.picked.Pick(parent, h.folders.Checked(), h.items.Checked(), parent.Access)
	h.bus.PublishAlert("ok", "Picked "+h.picked.Describe(), "info", 4*time.Second)
	h.updateChecked()
}

// ClearPicked empties the picked store.
func (h *Hierarchy) ClearPicked() {
	h.picked.Clear()
	h.updateChecked()
}

// MoveHere moves the entire picked set into the current parent with a
// single call. On success the picked store is cleared unconditionally
// and cached counts are adjusted; on failure the store is left untouched
// so the user can retry. The asymmetry is deliberate.
func (h *Hierarchy) MoveHere(ctx context.Context) error {
	parent := h.Parent()
	if !h.picked.MoveAllowed(parent) {
		return fmt.Errorf("cannot move %s here", h.picked.Describe())
	}

	h.busy.Store(true)
	defer h.busy.Store(false)

	resources := h.picked.Resources()
	if _, err := h.client.Move(ctx, resources, models.ParentRef{Kind: parent.Kind, ID: parent.ID}); err != nil {
		h.alertError("move failed", err)
		return err
	}

	nf, ni := len(resources[models.KindFolder]), len(resources[models.KindItem])
	adjustCounts(parent, nf, ni)
	h.picked.DrainOrigins(func(source *models.Resource, folders, items int) {
		adjustCounts(source, -folders, -items)
	})
	h.picked.Clear()

	h.bus.PublishAlert("ok", "Resources moved", "success", 4*time.Second)
	logging.Info("moved resources",
		zap.Int("folders", nf), zap.Int("items", ni),
		zap.String("dest", parent.ID))
	return h.Load(ctx)
}

// CopyHere copies the entire picked set into the current parent. Same
// success/failure asymmetry as MoveHere, without source-count changes.
func (h *Hierarchy) CopyHere(ctx context.Context) error {
	parent := h.Parent()
	if !h.picked.CopyAllowed(parent) {
		return fmt.Errorf("cannot copy %s here", h.picked.Describe())
	}

	h.busy.Store(true)
	defer h.busy.Store(false)

	resources := h.picked.Resources()
	if _, err := h.client.Copy(ctx, resources, models.ParentRef{Kind: parent.Kind, ID: parent.ID}); err != nil {
		h.alertError("copy failed", err)
		return err
	}

	adjustCounts(parent, len(resources[models.KindFolder]), len(resources[models.KindItem]))
	h.picked.Clear()

	h.bus.PublishAlert("ok", "Resources copied", "success", 4*time.Second)
	return h.Load(ctx)
}

// DeleteChecked deletes the checked resources after confirmation. With
// nothing checked it returns without ever opening the dialog. On success
// cached counts are decremented and the current parent is refreshed in
// place; the route does not change.
func (h *Hierarchy) DeleteChecked(ctx context.Context) error {
	checkedFolders := h.folders.Checked()
	checkedItems := h.items.Checked()
	if len(checkedFolders)+len(checkedItems) == 0 {
		return nil
	}

	if h.confirm != nil {
		text := fmt.Sprintf("Are you sure you want to delete the checked resources (%s)?",
			describeCounts(len(checkedFolders), len(checkedItems)))
		ok, err := h.confirm.Confirm(ctx, text, "Delete")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	h.busy.Store(true)
	defer h.busy.Store(false)

	resources := protocol.ResourceMap{}
	for _, f := range checkedFolders {
		resources.Add(models.KindFolder, f.ID)
	}
	for _, it := range checkedItems {
		resources.Add(models.KindItem, it.ID)
	}

	if _, err := h.client.Delete(ctx, resources); err != nil {
		h.alertError("delete failed", err)
		return err
	}

	parent := h.Parent()
	adjustCounts(parent, -len(checkedFolders), -len(checkedItems))

	h.bus.PublishAlert("ok", "Resources deleted", "success", 4*time.Second)
	return h.Load(ctx)
}

// DownloadChecked streams an archive of the checked resources. The
// caller owns the reader.
func (h *Hierarchy) DownloadChecked(ctx context.Context) (io.ReadCloser, error) {
	resources := protocol.ResourceMap{}
	for _, f := range h.folders.Checked() {
		resources.Add(models.KindFolder, f.ID)
	}
	for _, it := range h.items.Checked() {
		resources.Add(models.KindItem, it.ID)
	}
	if resources.Count() == 0 {
		return nil, fmt.Errorf("nothing checked")
	}

	rc, err := h.client.Download(ctx, resources)
	if err != nil {
		h.alertError("download failed", err)
		return nil, err
	}
	return rc, nil
}

// UploadHere uploads file content into the current parent folder. On
// success the new item is inserted locally and the cached item count and
// size are bumped; the insertion is replaced by the next full fetch.
func (h *Hierarchy) UploadHere(ctx context.Context, name string, content io.Reader, size int64) error {
	parent := h.Parent()
	if !parent.IsFolder() {
		return fmt.Errorf("can only upload into a folder")
	}

	h.busy.Store(true)
	defer h.busy.Store(false)

	resp, err := h.client.Upload(ctx, parent.ID, name, content, size)
	if err != nil {
		h.alertError("upload failed", err)
		return err
	}

	parent.NItems++
	parent.Size += resp.Size
	if err := h.items.Insert(&models.Resource{
		ID:     resp.ItemID,
		Kind:   models.KindItem,
		Name:   resp.Name,
		Parent: models.ParentRef{Kind: models.KindFolder, ID: parent.ID},
		Access: parent.Access,
		Size:   resp.Size,
	}); err != nil {
		return err
	}

	h.bus.PublishAlert("ok", fmt.Sprintf("Uploaded %q", resp.Name), "success", 4*time.Second)
	h.updateChecked()
	return nil
}

// InsertFolder adds a freshly created folder to the folder list without
// a re-fetch and bumps the cached count.
func (h *Hierarchy) InsertFolder(folder *models.Resource) error {
	if err := h.folders.Insert(folder); err != nil {
		return err
	}
	h.Parent().NFolders++
	h.updateChecked()
	return nil
}

func (h *Hierarchy) alertError(context string, err error) {
	logging.Error(context, zap.Error(err))
	h.bus.PublishAlert("warning", context+": "+err.Error(), "danger", 6*time.Second)
}

// adjustCounts applies a delta to a resource's cached child counts,
// clamping at zero.
func adjustCounts(res *models.Resource, folders, items int) {
	res.NFolders += folders
	if res.NFolders < 0 {
		res.NFolders = 0
	}
	res.NItems += items
	if res.NItems < 0 {
		res.NItems = 0
	}
}

func describeCounts(folders, items int) string {
	switch {
	case items == 0:
		return describeKind(models.KindFolder, folders)
	case folders == 0:
		return describeKind(models.KindItem, items)
	}
	return describeKind(models.KindFolder, folders) + " and " + describeKind(models.KindItem, items)
}
