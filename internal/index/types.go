// Package index holds the project index data model: per-file parse
// records, the file store, and the derived dependency graph.
package index

import (
	"time"

	"github.com/ucengine/uce/internal/gitinfo"
	"github.com/ucengine/uce/internal/parser"
)

// FormatVersion is the snapshot format version, bumped on breaking
// changes to the serialized shape. Loaders reject a higher major.
const FormatVersion = "1.0"

// FileRecord is the per-file parse result plus identity metadata. It
// is created on first discovery, mutated only by the indexer during a
// reparse, and destroyed on removal or branch switch.
type FileRecord struct {
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	MTime    int64  `json:"mtime"` // unix nanos
	Size     int64  `json:"size"`
	Language string `json:"language"`

	Symbols []parser.Symbol     `json:"symbols"`
	Imports []parser.Import     `json:"imports"`
	Exports []string            `json:"exports,omitempty"`
	Calls   []parser.Call       `json:"calls,omitempty"`
	Chunks  []parser.Chunk      `json:"chunks"`
	Doc     string              `json:"doc,omitempty"`
	Errors  []parser.ParseError `json:"errors,omitempty"`

	// ResolvedImports is synced by the graph rebuild: the subset of
	// imports that resolved to files present in the index.
	ResolvedImports []string `json:"resolved_imports,omitempty"`
}

// Stats summarizes the index for status reporting.
type Stats struct {
	TotalFiles   int            `json:"total_files"`
	TotalSymbols int            `json:"total_symbols"`
	TotalChunks  int            `json:"total_chunks"`
	TotalErrors  int            `json:"total_errors"`
	Languages    map[string]int `json:"languages,omitempty"`
}

// Project is the serialized shape of a full index snapshot. Maps are
// object-of-entries, sets are arrays.
type Project struct {
	Version    string                 `json:"version"`
	Name       string                 `json:"name"`
	Root       string                 `json:"root"`
	Git        gitinfo.Info           `json:"git"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Generation uint64                 `json:"generation"`
	Files      map[string]*FileRecord `json:"files"`
	Deps       map[string][]string    `json:"deps"`
	Dependents map[string][]string    `json:"dependents"`
	Stats      Stats                  `json:"stats"`
}

// ComputeStats derives Stats from a set of records.
func ComputeStats(records []*FileRecord) Stats {
	s := Stats{Languages: make(map[string]int)}
	for _, r := range records {
		s.TotalFiles++
		s.TotalSymbols += len(r.Symbols)
		s.TotalChunks += len(r.Chunks)
		s.TotalErrors += len(r.Errors)
		if r.Language != "" {
			s.Languages[r.Language]++
		}
	}
	return s
}
