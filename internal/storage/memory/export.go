// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// HistoryExport is the root JSON structure of an exported history file
type HistoryExport struct {
	StartedAt  time.Time                `json:"startedAt"`
	ExportedAt time.Time                `json:"exportedAt"`
	Snapshots  []core.Snapshot          `json:"snapshots"`
	Publishes  []core.StoredGeolocation `json:"publishes"`
}

func (b *Backend) buildExport() HistoryExport {
	export := HistoryExport{
		StartedAt:  b.startedAt,
		ExportedAt: b.now(),
		Snapshots:  b.snapshots,
		Publishes:  b.publishes,
	}
	if export.Snapshots == nil {
		export.Snapshots = []core.Snapshot{}
	}
	if export.Publishes == nil {
		export.Publishes = []core.StoredGeolocation{}
	}
	return export
}

// exportJSON writes the history to a JSON file, gzipped if configured
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	filename := fmt.Sprintf("tenchi_history_%s.json", b.startedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if b.cfg.CompressOutput {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		w = gw
	}

	if err := json.NewEncoder(w).Encode(export); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	b.exportedPath = outputPath
	return nil
}
