package fleet

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/landmark"
	"github.com/autopeer-io/agvfleet/internal/pkg/metrics"
)

// SnapshotStore persists serialized fleet snapshots.
type SnapshotStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Snapshot is the document uploaded on every snapshot tick.
type Snapshot struct {
	Time      time.Time           `json:"time"`
	Vehicles  []agv.Snapshot      `json:"vehicles"`
	Landmarks []landmark.Landmark `json:"landmarks"`
}

func (f *Fleet) Snapshot() Snapshot {
	return Snapshot{
		Time:      f.clock.Now().UTC(),
		Vehicles:  f.Vehicles(),
		Landmarks: f.landmarks.List(),
	}
}

// snapshotKey names the object of a snapshot taken at t.
func snapshotKey(prefix string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("20060102T150405.000Z")+".json")
}

func (f *Fleet) exportSnapshots(ctx context.Context) error {
	ticker := f.clock.NewTicker(f.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := f.uploadSnapshot(ctx); err != nil && ctx.Err() == nil {
				f.logger.Error(err, "snapshot upload failed")
			}
		}
	}
}

func (f *Fleet) uploadSnapshot(ctx context.Context) error {
	snap := f.Snapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	start := f.clock.Now()
	key := snapshotKey(f.cfg.SnapshotPrefix, snap.Time)
	if err := f.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return err
	}
	metrics.SnapshotUploadSeconds.Observe(f.clock.Since(start).Seconds())
	f.logger.Debug("snapshot uploaded", "key", key, "bytes", len(body))
	return nil
}
