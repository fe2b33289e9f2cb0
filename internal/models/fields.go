package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Document field names. They match the records the desktop client has always
// written, so existing collections stay readable.
const (
	FieldName         = "name"
	FieldType         = "type"
	FieldCreatedAt    = "created_at"
	FieldOriginPath   = "original_path"
	FieldStoragePath  = "storage_path"
	FieldDownloadURL  = "download_url"
	FieldURLIssuedAt  = "url_issued_at"
	FieldSize         = "size"
	FieldModifiedTime = "modified_time"
	FieldUploadedAt   = "uploaded_at"
	FieldSynced       = "synced"
	FieldMovedAt      = "moved_at"
	FieldParentFolder = "parent_folder"
	FieldPath         = "path"

	TypeFile = "file"
)

// FolderFields encodes a folder as document fields.
func FolderFields(f *Folder) map[string]interface{} {
	return map[string]interface{}{
		FieldName:      f.Name,
		FieldCreatedAt: formatTime(f.CreatedAt),
	}
}

// FolderFromFields decodes a folder document. The name comes from the document ID.
func FolderFromFields(parent Path, name string, m map[string]interface{}) *Folder {
	return &Folder{
		Parent:    parent,
		Name:      name,
		CreatedAt: TimeField(m, FieldCreatedAt),
	}
}

// FileFields encodes a file entry as document fields. Zero timestamps and
// empty strings are written as empty values rather than omitted, so a
// document read back always has the full field set.
func FileFields(e *FileEntry) map[string]interface{} {
	m := map[string]interface{}{
		FieldName:         e.Name,
		FieldType:         TypeFile,
		FieldOriginPath:   e.OriginPath,
		FieldStoragePath:  e.BlobKey,
		FieldDownloadURL:  e.DownloadURL,
		FieldURLIssuedAt:  formatTime(e.URLIssuedAt),
		FieldSize:         e.Size,
		FieldModifiedTime: formatTime(e.ModifiedAt),
		FieldUploadedAt:   formatTime(e.UploadedAt),
		FieldSynced:       e.Synced,
	}
	if !e.MovedAt.IsZero() {
		m[FieldMovedAt] = formatTime(e.MovedAt)
		m[FieldParentFolder] = e.ParentFolder
		m[FieldPath] = e.Parent.String()
	}
	return m
}

// FileFromFields decodes a file document.
func FileFromFields(parent Path, name string, m map[string]interface{}) *FileEntry {
	return &FileEntry{
		Parent:       parent,
		Name:         name,
		Size:         Int64Field(m, FieldSize),
		OriginPath:   StringField(m, FieldOriginPath),
		BlobKey:      StringField(m, FieldStoragePath),
		DownloadURL:  StringField(m, FieldDownloadURL),
		URLIssuedAt:  TimeField(m, FieldURLIssuedAt),
		ModifiedAt:   TimeField(m, FieldModifiedTime),
		UploadedAt:   TimeField(m, FieldUploadedAt),
		Synced:       BoolField(m, FieldSynced),
		MovedAt:      TimeField(m, FieldMovedAt),
		ParentFolder: StringField(m, FieldParentFolder),
	}
}

// StringField reads a string field, returning "" when absent or mistyped.
func StringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// BoolField reads a bool field.
func BoolField(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Int64Field reads an integer field. Backends hand numbers back as different
// Go types (JSON decoders, BSON int32/int64), so all of them are accepted.
func Int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// TimeField reads an RFC 3339 timestamp. Missing or unparseable values give the zero time.
func TimeField(m map[string]interface{}, key string) time.Time {
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	case time.Time:
		return v
	}
	return time.Time{}
}

// FormatTime renders a timestamp the way documents store it.
func FormatTime(t time.Time) string {
	return formatTime(t)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
