// Package metadata keeps a minimal Iceberg style table description of the
// exported snapshot files so query engines can find every refresh.
package metadata

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DataFile describes a single parquet file written by the exporter.
type DataFile struct {
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

// Snapshot is one committed refresh.
type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	RefreshID   string `json:"refresh-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
}

// TableMetadata is the table level metadata file.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableUUID         string     `json:"table-uuid"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []Snapshot `json:"snapshots"`
}

// Commit holds the encoded documents produced for one refresh.
type Commit struct {
	ManifestName string
	Manifest     []byte
	Metadata     []byte
}

// statusAdded marks a data file added by the snapshot.
const statusAdded = 1

// Generator accumulates snapshots for one table. It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	location  string
	tableUUID string
	keep      int
	snapshots []Snapshot
}

// NewGenerator returns a generator for the table at location retaining the
// newest keep snapshots. A non-positive keep retains all of them.
func NewGenerator(location string, keep int) *Generator {
	return &Generator{
		location:  location,
		tableUUID: uuid.NewString(),
		keep:      keep,
	}
}

// Commit records files as the snapshot of refreshID and returns the manifest
// and the updated table metadata.
func (g *Generator) Commit(refreshID string, at time.Time, files []DataFile) (Commit, error) {
	if len(files) == 0 {
		return Commit{}, fmt.Errorf("commit %s: no data files", refreshID)
	}

	entries := make([]ManifestEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, ManifestEntry{Status: statusAdded, DataFile: f})
	}
	manifest, err := json.Marshal(entries)
	if err != nil {
		return Commit{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	snapID := at.UnixNano()
	if n := len(g.snapshots); n > 0 && snapID <= g.snapshots[n-1].SnapshotID {
		snapID = g.snapshots[n-1].SnapshotID + 1
	}
	name := fmt.Sprintf("manifest-%d.json", snapID)
	g.snapshots = append(g.snapshots, Snapshot{
		SnapshotID:  snapID,
		RefreshID:   refreshID,
		TimestampMs: at.UnixMilli(),
		Manifest:    name,
	})
	if g.keep > 0 && len(g.snapshots) > g.keep {
		g.snapshots = append([]Snapshot(nil), g.snapshots[len(g.snapshots)-g.keep:]...)
	}

	tm := TableMetadata{
		FormatVersion:     2,
		TableUUID:         g.tableUUID,
		Location:          g.location,
		CurrentSnapshotID: snapID,
		Snapshots:         g.snapshots,
	}
	meta, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return Commit{}, err
	}
	return Commit{ManifestName: name, Manifest: manifest, Metadata: meta}, nil
}
