package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quarrydata/quarry/internal/metrics"
	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	return c, srv
}

func TestListFoldersQuery(t *testing.T) {
	var gotQuery map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/folder" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(protocol.ListResponse{Total: 0})
	}))
	defer srv.Close()

	_, err := c.ListFolders(context.Background(), models.ParentRef{Kind: models.KindCollection, ID: "c1"}, 25, 50)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"parentType": "collection", "parentId": "c1", "limit": "25", "offset": "50"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestMoveWireFormat(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(protocol.MoveResult{NFolders: 1, NItems: 1})
	}))
	defer srv.Close()

	resources := protocol.ResourceMap{}
	resources.Add(models.KindFolder, "f1")
	resources.Add(models.KindItem, "i1")

	res, err := c.Move(context.Background(), resources, models.ParentRef{Kind: models.KindFolder, ID: "dest"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NFolders != 1 || res.NItems != 1 {
		t.Errorf("result = %+v", res)
	}
	if gotMethod != "PUT" || gotPath != "/api/v1/resource/move" {
		t.Errorf("request = %s %s, want PUT /api/v1/resource/move", gotMethod, gotPath)
	}
	if gotBody["parentType"] != "folder" || gotBody["parentId"] != "dest" {
		t.Errorf("parent in body = %v/%v", gotBody["parentType"], gotBody["parentId"])
	}
	rm, ok := gotBody["resources"].(map[string]any)
	if !ok {
		t.Fatalf("resources missing from body: %v", gotBody)
	}
	if _, ok := rm["folder"]; !ok {
		t.Error("folder ids missing from wire resources")
	}
}

func TestDeleteUsesMethodOverride(t *testing.T) {
	var gotMethod, gotOverride string
	var gotBody map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotOverride = r.Header.Get("X-HTTP-Method-Override")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(protocol.DeleteResult{Deleted: 2})
	}))
	defer srv.Close()

	resources := protocol.ResourceMap{}
	resources.Add(models.KindFolder, "f1", "f2")

	res, err := c.Delete(context.Background(), resources)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", res.Deleted)
	}
	if gotMethod != "POST" {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotOverride != "DELETE" {
		t.Errorf("override header = %q, want DELETE", gotOverride)
	}
	if _, ok := gotBody["resources"]; !ok {
		t.Error("resources missing from delete body")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Message: "invalid parent", Field: "parentId"})
	}))
	defer srv.Close()

	_, err := c.Move(context.Background(), protocol.ResourceMap{models.KindFolder: {"f1"}}, models.ParentRef{})
	if err == nil {
		t.Fatal("expected error")
	}
	ae, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("error %T is not an APIError", err)
	}
	if ae.Status != http.StatusBadRequest {
		t.Errorf("status = %d", ae.Status)
	}
	if ae.Message != "invalid parent" || ae.Field != "parentId" {
		t.Errorf("message/field = %q/%q", ae.Message, ae.Field)
	}
}

func TestRenameRejectsEmptyName(t *testing.T) {
	called := false
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := c.Rename(context.Background(), models.KindFolder, "f1", "")
	ae, ok := AsAPIError(err)
	if !ok || ae.Field != "name" {
		t.Fatalf("err = %v, want validation error on name", err)
	}
	if called {
		t.Error("empty name must be rejected without a request")
	}
}

func TestCancelFetchesAbortsListing(t *testing.T) {
	release := make(chan struct{})
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		json.NewEncoder(w).Encode(protocol.ListResponse{})
	}))
	defer srv.Close()
	defer close(release)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ListFolders(context.Background(), models.ParentRef{Kind: models.KindFolder, ID: "p"}, 10, 0)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.CancelFetches()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("cancelled fetch returned nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch not cancelled")
	}

	// The group context is replaced, so later fetches still work.
	if _, err := c.ListFolders(context.Background(), models.ParentRef{Kind: models.KindFolder, ID: "p"}, 10, 0); err != nil {
		t.Fatalf("fetch after cancel: %v", err)
	}
}

func TestLoginInstallsToken(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{Message: "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(protocol.AuthResponse{
			Token:   "tok-123",
			Expires: time.Now().Add(time.Hour),
			User:    protocol.UserInfo{ID: "u1", Login: "alice"},
		})
	}))
	defer srv.Close()

	if _, err := c.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("bad password must fail")
	}
	if c.AuthToken() != "" {
		t.Error("failed login must not install a token")
	}

	resp, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.Login != "alice" {
		t.Errorf("login = %s", resp.User.Login)
	}
	if c.AuthToken() != "tok-123" {
		t.Errorf("token = %q, want tok-123", c.AuthToken())
	}
}

func TestAuthHeaderApplied(t *testing.T) {
	var gotAuth string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(protocol.ListResponse{})
	}))
	defer srv.Close()

	c.SetAuthToken("tok-xyz")
	if _, err := c.ListItems(context.Background(), "f1", 10, 0); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-xyz" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestDownloadStreams(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("resources") == "" {
			t.Error("resources query missing")
		}
		io.WriteString(w, "zip-bytes")
	}))
	defer srv.Close()

	rc, err := c.Download(context.Background(), protocol.ResourceMap{models.KindItem: {"i1"}})
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "zip-bytes" {
		t.Errorf("body = %q", data)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	tf := &TokenFile{Token: "tok", Expires: time.Now().Add(time.Hour).UTC(), Server: "http://x", Login: "alice"}
	if err := SaveTokenFile(path, tf); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadTokenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Token != "tok" || loaded.Login != "alice" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.IsExpired(0) {
		t.Error("fresh token reported expired")
	}
	if !loaded.IsExpired(2 * time.Hour) {
		t.Error("token within margin must report expired")
	}

	missing, err := LoadTokenFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || missing != nil {
		t.Errorf("missing file: tf=%v err=%v, want nil/nil", missing, err)
	}
}

func TestPingRecoversOnline(t *testing.T) {
	fail := true
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			fail = false
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.IsOnline() {
		t.Error("client must report online after successful ping")
	}
}

func TestUploadSendsContent(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/file" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("folderId") != "f1" || r.URL.Query().Get("name") != "a.txt" {
			t.Errorf("query = %v", r.URL.Query())
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hello" {
			t.Errorf("body = %q", body)
		}
		json.NewEncoder(w).Encode(protocol.UploadResponse{ItemID: "i9", Name: "a.txt", Size: 5})
	}))
	defer srv.Close()

	resp, err := c.Upload(context.Background(), "f1", "a.txt", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ItemID != "i9" || resp.Size != 5 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestIDRoutesUseTemplatedMetricLabel(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.Resource{ID: "id-77ab", Kind: models.KindFolder, Name: "x"})
	}))
	defer srv.Close()

	if _, err := c.GetResource(context.Background(), models.KindFolder, "id-77ab"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Rename(context.Background(), models.KindFolder, "id-77ab", "y"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `route="/folder/{id}"`) {
		t.Error("requests by id not recorded under the templated route")
	}
	if strings.Contains(body, "id-77ab") {
		t.Error("resource id leaked into a metric label")
	}
}
