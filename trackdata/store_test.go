package trackdata

import (
	"context"
	"path/filepath"
	"testing"

	"racecoach/track"
)

type fakeKV struct {
	segments map[string][]track.Segment
	puts     int
}

func (f *fakeKV) Get(ctx context.Context, trackName string) ([]track.Segment, bool, error) {
	segs, ok := f.segments[trackName]
	return segs, ok, nil
}

func (f *fakeKV) Put(ctx context.Context, trackName string, segments []track.Segment) error {
	f.puts++
	if f.segments == nil {
		f.segments = make(map[string][]track.Segment)
	}
	f.segments[trackName] = segments
	return nil
}

func spaSegments() []track.Segment {
	return []track.Segment{
		{ID: "s1", Name: "La Source", Type: track.SegmentCorner, StartFrac: 0, EndFrac: 0.5, Description: "tight right"},
		{ID: "s2", Name: "Kemmel", Type: track.SegmentStraight, StartFrac: 0.5, EndFrac: 1.0, Description: "long straight"},
	}
}

func TestStoreFallsBackToKV(t *testing.T) {
	kv := &fakeKV{segments: map[string][]track.Segment{"Spa": spaSegments()}}
	store, err := NewStore(filepath.Join(t.TempDir(), "tracks.json"), kv, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	segs, err := store.GetSegments(context.Background(), "Spa")
	if err != nil {
		t.Fatalf("GetSegments() error = %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("GetSegments() returned %d segments, want 2", len(segs))
	}
	if err := track.Validate(segs); err != nil {
		t.Fatalf("segments from KV failed validation: %v", err)
	}

	// Second call should be served from the in-memory cache, not the KV again.
	kv.segments["Spa"] = nil
	segs2, err := store.GetSegments(context.Background(), "Spa")
	if err != nil || len(segs2) != 2 {
		t.Fatalf("expected the cached result on the second call, got %d segments, err=%v", len(segs2), err)
	}
}

func TestStoreReturnsNilWhenNoTierHasData(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "tracks.json"), nil, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	segs, err := store.GetSegments(context.Background(), "Unknown Track")
	if err != nil {
		t.Fatalf("GetSegments() error = %v", err)
	}
	if segs != nil {
		t.Fatalf("expected nil segments when no tier has data, got %v", segs)
	}
}
