package consensus

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/nmxmxh/dmct/internal/core"
)

const snapshotVersion = 1

// snapshot is the on-disk form of a ledger: brotli-compressed JSON.
type snapshot struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

// WriteSnapshot writes the event log to w. Derived state is not stored; it
// is rebuilt when the snapshot is merged.
func (l *Ledger) WriteSnapshot(w io.Writer) error {
	bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
	if err := json.NewEncoder(bw).Encode(snapshot{Version: snapshotVersion, Events: l.Events()}); err != nil {
		bw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes the events of a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) ([]Event, error) {
	var snap snapshot
	if err := json.NewDecoder(brotli.NewReader(r)).Decode(&snap); err != nil {
		return nil, core.ErrDecodeFailed("ledger snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return nil, core.NewError(core.ErrCodeDecode, "unsupported snapshot version").
			WithContext("version", snap.Version)
	}
	for i := range snap.Events {
		if err := snap.Events[i].Validate(); err != nil {
			return nil, err
		}
		if snap.Events[i].ID == "" {
			return nil, core.NewError(core.ErrCodeDecode, "snapshot event without id").
				WithContext("index", i)
		}
	}
	return snap.Events, nil
}

// MergeSnapshot merges the events of a snapshot into l, as Merge does for a
// live ledger.
func (l *Ledger) MergeSnapshot(r io.Reader) (int, error) {
	events, err := ReadSnapshot(r)
	if err != nil {
		return 0, err
	}
	return l.mergeEvents(events), nil
}
