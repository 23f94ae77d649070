// Package models contains shared data types used across the client.
package models

import (
	"fmt"
	"time"
)

// Kind identifies a resource type in the hierarchy.
type Kind string

const (
	KindCollection Kind = "collection"
	KindUser       Kind = "user"
	KindFolder     Kind = "folder"
	KindItem       Kind = "item"
)

// Selectable reports whether resources of this kind participate in
// checkbox selection and bulk operations. Collections and users are
// navigable roots only.
func (k Kind) Selectable() bool {
	return k == KindFolder || k == KindItem
}

// ParseKind validates a kind string. Unknown kinds are a wiring defect,
// not a runtime condition, so callers are expected to treat an error
// here as fatal.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCollection, KindUser, KindFolder, KindItem:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// AccessLevel is the per-viewer permission on a resource,
// ordered None < Read < Write < Admin.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessNone:
		return "none"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessAdmin:
		return "admin"
	}
	return fmt.Sprintf("access(%d)", int(l))
}

// ParentRef points at a resource's parent.
type ParentRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Resource represents a node in the collection/folder/item hierarchy.
// NFolders/NItems/Size are server-cached child counts, present on
// folder-like resources.
type Resource struct {
	ID       string      `json:"_id"`
	Kind     Kind        `json:"_modelType"`
	Name     string      `json:"name"`
	Parent   ParentRef   `json:"parent"`
	Access   AccessLevel `json:"_accessLevel"`
	NFolders int         `json:"nFolders,omitempty"`
	NItems   int         `json:"nItems,omitempty"`
	Size     int64       `json:"size,omitempty"`
	Updated  time.Time   `json:"updated,omitempty"`
}

// IsFolder reports whether the resource can hold children.
func (r *Resource) IsFolder() bool {
	return r != nil && r.Kind == KindFolder
}
