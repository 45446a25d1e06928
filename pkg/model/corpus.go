package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Corpus is a read-only projection of a RAG corpus held by the backend
type Corpus struct {
	ResourceName string
	DisplayName  string
	CreateTime   time.Time
	UpdateTime   time.Time
}

// Document is a read-only projection of a file inside a corpus
type Document struct {
	FileID      string `json:"file_id"`
	DisplayName string `json:"display_name"`
	SourceURI   string `json:"source_uri"`
	CreateTime  string `json:"create_time"`
	UpdateTime  string `json:"update_time"`
}

var displayNameReplacer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeDisplayName replaces characters not accepted in a corpus display name
func SanitizeDisplayName(name string) string {
	return displayNameReplacer.ReplaceAllString(name, "_")
}

// IsCorpusResourceName reports whether name is a full corpus resource path
func IsCorpusResourceName(name string) bool {
	return strings.HasPrefix(name, "projects/") && strings.Contains(name, "/ragCorpora/")
}

// DocumentResourceName builds the resource path of a file in a corpus
func DocumentResourceName(corpusResource, documentID string) string {
	return fmt.Sprintf("%s/ragFiles/%s", corpusResource, documentID)
}

// LastSegment returns the trailing ID of a hierarchical resource path
func LastSegment(resourceName string) string {
	idx := strings.LastIndex(resourceName, "/")
	if idx < 0 {
		return resourceName
	}
	return resourceName[idx+1:]
}

// FormatTime renders a backend timestamp, leaving zero values empty
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
