package tui

import (
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quarrydata/quarry/internal/browse"
	"github.com/quarrydata/quarry/internal/events"
	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

type stubAPI struct {
	deletes int
	moves   int
}

func (s *stubAPI) ListFolders(ctx context.Context, parent models.ParentRef, limit, offset int) (*protocol.ListResponse, error) {
	rs := []*models.Resource{
		{ID: "f1", Kind: models.KindFolder, Name: "alpha", Access: models.AccessAdmin},
		{ID: "f2", Kind: models.KindFolder, Name: "beta", Access: models.AccessAdmin},
	}
	return &protocol.ListResponse{Resources: rs, Total: len(rs)}, nil
}

func (s *stubAPI) ListItems(ctx context.Context, folderID string, limit, offset int) (*protocol.ListResponse, error) {
	rs := []*models.Resource{
		{ID: "i1", Kind: models.KindItem, Name: "data.bin", Size: 2048},
	}
	return &protocol.ListResponse{Resources: rs, Total: len(rs)}, nil
}

func (s *stubAPI) Move(ctx context.Context, r protocol.ResourceMap, p models.ParentRef) (*protocol.MoveResult, error) {
	s.moves++
	return &protocol.MoveResult{}, nil
}

func (s *stubAPI) Copy(ctx context.Context, r protocol.ResourceMap, p models.ParentRef) (*protocol.MoveResult, error) {
	return &protocol.MoveResult{}, nil
}

func (s *stubAPI) Delete(ctx context.Context, r protocol.ResourceMap) (*protocol.DeleteResult, error) {
	s.deletes++
	return &protocol.DeleteResult{Deleted: r.Count()}, nil
}

func (s *stubAPI) Download(ctx context.Context, r protocol.ResourceMap) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *stubAPI) Upload(ctx context.Context, folderID, name string, content io.Reader, size int64) (*protocol.UploadResponse, error) {
	return &protocol.UploadResponse{ItemID: "x", Name: name, Size: size}, nil
}

func (s *stubAPI) CancelFetches() {}

func newTestModel(t *testing.T) (*Model, *stubAPI) {
	t.Helper()
	api := &stubAPI{}
	bus := events.NewBus()
	gate := NewConfirmGate()

	root := &models.Resource{ID: "root", Kind: models.KindFolder, Name: "home", Access: models.AccessAdmin, NFolders: 2, NItems: 1}
	hier, err := browse.New(root, browse.Options{
		Client:  api,
		Picked:  browse.NewPickedResources(),
		Bus:     bus,
		Confirm: gate,
	})
	if err != nil {
		t.Fatal(err)
	}

	m := New(hier, gate, bus)
	if _, cmd := m.Update(m.loadCmd()()); cmd != nil {
		t.Log("load produced a follow-up command")
	}
	return m, api
}

func keyPress(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleUpdatesProjection(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(keyPress(" "))
	if m.proj.FolderCount != 1 {
		t.Errorf("FolderCount = %d, want 1", m.proj.FolderCount)
	}

	// Move to the item row (combined index 2) and check it too.
	m.cursor = 2
	m.Update(keyPress(" "))
	if m.proj.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", m.proj.ItemCount)
	}
}

func TestDeleteNeedsCheckedRows(t *testing.T) {
	m, api := newTestModel(t)

	m.Update(keyPress("d"))
	if m.confirming {
		t.Error("delete modal opened with nothing checked")
	}
	if api.deletes != 0 {
		t.Errorf("deletes = %d, want 0", api.deletes)
	}
}

func TestDeleteModalFlow(t *testing.T) {
	m, api := newTestModel(t)

	m.Update(keyPress(" "))
	m.Update(keyPress("d"))
	if !m.confirming {
		t.Fatal("delete modal did not open")
	}

	// Declining leaves everything alone.
	m.Update(keyPress("n"))
	if api.deletes != 0 {
		t.Errorf("declined delete issued %d calls", api.deletes)
	}

	m.Update(keyPress("d"))
	_, cmd := m.Update(keyPress("y"))
	if cmd == nil {
		t.Fatal("confirming did not produce a command")
	}
	if m.confirming {
		t.Error("modal still open after confirm")
	}

	// The delete runs as a command, not inside Update.
	if api.deletes != 0 {
		t.Errorf("delete ran before the command executed")
	}
	m.Update(cmd())
	if api.deletes != 1 {
		t.Errorf("deletes = %d, want 1", api.deletes)
	}
}

func TestMoveRunsAsCommand(t *testing.T) {
	m, api := newTestModel(t)

	m.Update(keyPress(" "))
	m.Update(keyPress("p"))

	_, cmd := m.Update(keyPress("m"))
	if cmd == nil {
		t.Fatal("move key did not produce a command")
	}
	if api.moves != 0 {
		t.Fatalf("move ran inside Update, moves = %d", api.moves)
	}
	m.Update(cmd())
	if api.moves != 1 {
		t.Errorf("moves = %d, want 1", api.moves)
	}
}

func TestConfirmGateIsOneShot(t *testing.T) {
	g := NewConfirmGate()

	ok, err := g.Confirm(context.Background(), "x", "y")
	if err != nil || ok {
		t.Fatalf("unarmed gate = %v/%v", ok, err)
	}

	g.Arm()
	if ok, _ := g.Confirm(context.Background(), "x", "y"); !ok {
		t.Fatal("armed gate must confirm")
	}
	if ok, _ := g.Confirm(context.Background(), "x", "y"); ok {
		t.Fatal("gate must disarm after one use")
	}
}

func TestViewRendersRows(t *testing.T) {
	m, _ := newTestModel(t)

	view := m.View()
	for _, want := range []string{"alpha", "beta", "data.bin", "Folders"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
