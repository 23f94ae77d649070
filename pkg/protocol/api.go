// Package protocol defines the API request/response types.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/quarrydata/quarry/pkg/models"
)

// ResourceMap maps a resource kind to the ids of that kind taking part
// in a bulk operation. Kinds with no ids are omitted from the wire
// encoding entirely — the API rejects explicit empty arrays.
type ResourceMap map[models.Kind][]string

// Add appends ids under a kind. Adding zero ids is a no-op so the kind
// key never appears empty.
func (m ResourceMap) Add(kind models.Kind, ids ...string) {
	if len(ids) == 0 {
		return
	}
	m[kind] = append(m[kind], ids...)
}

// Count returns the total number of ids across all kinds.
func (m ResourceMap) Count() int {
	n := 0
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// MarshalJSON drops kinds whose id list is empty.
func (m ResourceMap) MarshalJSON() ([]byte, error) {
	out := make(map[models.Kind][]string, len(m))
	for kind, ids := range m {
		if len(ids) > 0 {
			out[kind] = ids
		}
	}
	return json.Marshal(out)
}

// ListResponse is one page of children from GET /folder or GET /item.
type ListResponse struct {
	Resources []*models.Resource `json:"resources"`
	Total     int                `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

// MoveResult is returned by PUT /resource/move and POST /resource/copy.
type MoveResult struct {
	NFolders int `json:"nFolders"`
	NItems   int `json:"nItems"`
}

// DeleteResult is returned by the bulk delete endpoint.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// UploadResponse is returned after uploading a file into a folder.
type UploadResponse struct {
	ItemID string `json:"itemId"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// ErrorResponse is the body of any non-2xx API response. Field is set
// for validation errors that relate to a single input.
type ErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Type    string `json:"type,omitempty"`
}

// AuthResponse is returned by POST /user/authentication.
type AuthResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	User    UserInfo  `json:"user"`
}

// UserInfo identifies the authenticated viewer.
type UserInfo struct {
	ID    string `json:"_id"`
	Login string `json:"login"`
	Admin bool   `json:"admin"`
}

// Notification is a server-sent event on GET /notification/stream.
type Notification struct {
	Type      string      `json:"type"`
	Kind      models.Kind `json:"kind,omitempty"`
	ID        string      `json:"id,omitempty"`
	ParentID  string      `json:"parentId,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
