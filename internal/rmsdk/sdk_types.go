package rmsdk

import (
	"fmt"
	"runtime"

	"github.com/remsync/remsync/internal/version"
)

const (
	// Entry types as the device reports them.
	EntryTypeCollection = "CollectionType"
	EntryTypeDocument   = "DocumentType"

	// RootID is the id of the device's root collection.
	RootID = ""
)

var deviceUserAgent = fmt.Sprintf("%s (%s; %s; %s)", version.UserAgent(), version.Revision, runtime.GOOS, runtime.GOARCH)

// Entry is one element of a device folder listing, JSON field names exactly
// as the device firmware emits them. VissibleName is the firmware's own
// spelling, not ours.
type Entry struct {
	ID           string `json:"ID"`
	ParentID     string `json:"Parent"`
	VissibleName string `json:"VissibleName"`
	Type         string `json:"Type"`
	FileType     string `json:"fileType,omitempty"`
}

// Name returns the entry's display name.
func (e *Entry) Name() string { return e.VissibleName }

// IsFolder reports whether the entry is a collection.
func (e *Entry) IsFolder() bool { return e.Type == EntryTypeCollection }

// IsDocument reports whether the entry is a document.
func (e *Entry) IsDocument() bool { return e.Type == EntryTypeDocument }

// UploadParams describes a single document upload.
type UploadParams struct {
	// FilePath is the local file to send.
	FilePath string

	// UploadName is the filename presented to the device. Defaults to the
	// base name of FilePath.
	UploadName string

	// Callback receives upload progress, at most once per second.
	Callback func(uploaded, total int64)
}
