// Package persistence implements the on-disk layout of §6.4: a sessions
// index, one JSON file per session, a per-(track,car) reference file and a
// shared corner-reference file, all written through a temp-file-plus-rename
// so a crash mid-write never leaves a half-written file in place. Grounded
// in original_source/python-server/session_persistence.py's local-file
// half (the cloud-sync half is out of scope per §1's persistence-adapter
// boundary).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"racecoach/reference"
	"racecoach/session"
	"racecoach/telemetry"
)

// IndexEntry is one row of sessions_index.json.
type IndexEntry struct {
	SessionID           string  `json:"session_id"`
	TrackName           string  `json:"track_name"`
	CarName             string  `json:"car_name"`
	StartTime           float64 `json:"start_time"`
	EndTime             float64 `json:"end_time,omitempty"`
	BestLapTime         float64 `json:"best_lap_time,omitempty"`
	BaselineEstablished bool    `json:"baseline_established"`
}

// SessionRecord is the full serialized form of a session.State.
type SessionRecord struct {
	SessionID           string                         `json:"session_id"`
	TrackName           string                         `json:"track_name"`
	CarName             string                          `json:"car_name"`
	StartTime           float64                        `json:"start_time"`
	EndTime             float64                        `json:"end_time,omitempty"`
	Laps                []telemetry.LapRecord          `json:"laps"`
	SessionBestLapTime  float64                        `json:"session_best_lap_time"`
	PersonalBestLapTime float64                        `json:"personal_best_lap_time"`
	BaselineEstablished bool                           `json:"baseline_established"`
	DrivingStyle        string                         `json:"driving_style"`
	ConsistencyThreshold float64                       `json:"consistency_threshold"`
	CoachingIntensity   float64                        `json:"coaching_intensity"`
	CornerTables        map[string]session.CornerLearned `json:"corner_analysis"`
	ShiftBands          map[int][2]float64            `json:"optimal_shift_rpm_ranges"`
}

// ReferenceFile is the serialized form of `<track>_<car>_references.json`:
// a map from reference type to the stored lap.
type ReferenceFile map[reference.LapType]*reference.ReferenceLap

// Store owns the on-disk coaching_data directory.
type Store struct {
	dir string
}

// NewStore ensures dataDir exists and returns a Store bound to it.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create data dir: %w", err)
	}
	return &Store{dir: dataDir}, nil
}

func (s *Store) indexPath() string    { return filepath.Join(s.dir, "sessions_index.json") }
func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
func (s *Store) referencesPath(track, car string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_references.json", track, car))
}
func (s *Store) cornerReferencesPath() string {
	return filepath.Join(s.dir, "reference_data", "corner_references.json")
}

// writeAtomic serializes v as indented JSON and installs it at path via a
// temp-file-plus-rename, so a crash mid-write leaves the previous file
// (or nothing) rather than a truncated one.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// LoadIndex reads sessions_index.json, returning an empty slice if absent.
func (s *Store) LoadIndex() ([]IndexEntry, error) {
	var entries []IndexEntry
	if _, err := readJSON(s.indexPath(), &entries); err != nil {
		return nil, fmt.Errorf("persistence: load index: %w", err)
	}
	return entries, nil
}

func (s *Store) saveIndex(entries []IndexEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime < entries[j].StartTime })
	return writeAtomic(s.indexPath(), entries)
}

func toRecord(st *session.State) SessionRecord {
	rec := SessionRecord{
		SessionID:            st.ID,
		TrackName:            st.Track,
		CarName:              st.Car,
		StartTime:            float64(st.StartTime.Unix()),
		Laps:                 st.Laps,
		SessionBestLapTime:   st.SessionBestLapTime,
		PersonalBestLapTime:  st.PersonalBestLapTime,
		BaselineEstablished:  st.BaselineEstablished,
		DrivingStyle:         string(st.DrivingStyle),
		ConsistencyThreshold: st.Thresholds.ConsistencyThreshold,
		CoachingIntensity:    st.Thresholds.CoachingIntensity,
		CornerTables:         st.CornerTables,
		ShiftBands:           st.ShiftBands,
	}
	if !st.EndTime.IsZero() {
		rec.EndTime = float64(st.EndTime.Unix())
	}
	return rec
}

// SaveSession writes <session_id>.json and folds the session into the
// index, write-through (on every new personal best, per §5's "persistence
// runs ... on each new personal best").
func (s *Store) SaveSession(st *session.State) error {
	rec := toRecord(st)
	if err := writeAtomic(s.sessionPath(st.ID), rec); err != nil {
		return fmt.Errorf("persistence: save session %s: %w", st.ID, err)
	}

	entries, err := s.LoadIndex()
	if err != nil {
		return err
	}
	found := false
	for i := range entries {
		if entries[i].SessionID == st.ID {
			entries[i] = indexEntryFor(rec)
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, indexEntryFor(rec))
	}
	return s.saveIndex(entries)
}

func indexEntryFor(rec SessionRecord) IndexEntry {
	return IndexEntry{
		SessionID:           rec.SessionID,
		TrackName:           rec.TrackName,
		CarName:             rec.CarName,
		StartTime:           rec.StartTime,
		EndTime:             rec.EndTime,
		BestLapTime:         rec.PersonalBestLapTime,
		BaselineEstablished: rec.BaselineEstablished,
	}
}

// LoadSession reads <session_id>.json. found is false if no such file exists.
func (s *Store) LoadSession(id string) (rec SessionRecord, found bool, err error) {
	found, err = readJSON(s.sessionPath(id), &rec)
	return rec, found, err
}

// TrackBaseline is what GetTrackBaseline returns for a (track, car) pair:
// the persisted personal best and the learned state needed to skip the
// baseline countdown on the next session (§3 lifecycle, §8 scenario 6).
type TrackBaseline struct {
	BestLapTime  float64
	DrivingStyle string
	CornerTables map[string]session.CornerLearned
	ShiftBands   map[int][2]float64
}

// GetTrackBaseline scans the index for the most recent session with an
// established baseline for (track, car) and loads its record.
func (s *Store) GetTrackBaseline(track, car string) (*TrackBaseline, error) {
	entries, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	var candidates []IndexEntry
	for _, e := range entries {
		if e.TrackName == track && e.CarName == car && e.BaselineEstablished {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].StartTime > candidates[j].StartTime })

	rec, found, err := s.LoadSession(candidates[0].SessionID)
	if err != nil || !found {
		return nil, err
	}
	return &TrackBaseline{
		BestLapTime:  rec.PersonalBestLapTime,
		DrivingStyle: rec.DrivingStyle,
		CornerTables: rec.CornerTables,
		ShiftBands:   rec.ShiftBands,
	}, nil
}

// SaveReferences write-through persists the full set of named reference
// laps for (track, car).
func (s *Store) SaveReferences(track, car string, refs ReferenceFile) error {
	if err := writeAtomic(s.referencesPath(track, car), refs); err != nil {
		return fmt.Errorf("persistence: save references for %s/%s: %w", track, car, err)
	}
	return nil
}

// LoadReferences reads `<track>_<car>_references.json`, returning an empty
// map if absent.
func (s *Store) LoadReferences(track, car string) (ReferenceFile, error) {
	refs := make(ReferenceFile)
	if _, err := readJSON(s.referencesPath(track, car), &refs); err != nil {
		return nil, fmt.Errorf("persistence: load references for %s/%s: %w", track, car, err)
	}
	return refs, nil
}

// SaveCornerReferences persists the shared corner-reference list.
func (s *Store) SaveCornerReferences(corners []reference.CornerReference) error {
	if err := writeAtomic(s.cornerReferencesPath(), corners); err != nil {
		return fmt.Errorf("persistence: save corner references: %w", err)
	}
	return nil
}

// LoadCornerReferences reads reference_data/corner_references.json.
func (s *Store) LoadCornerReferences() ([]reference.CornerReference, error) {
	var corners []reference.CornerReference
	if _, err := readJSON(s.cornerReferencesPath(), &corners); err != nil {
		return nil, fmt.Errorf("persistence: load corner references: %w", err)
	}
	return corners, nil
}

// NewSessionID mints a session id the way the original server does:
// `<track>_<car>_<unix-seconds>`.
func NewSessionID(track, car string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", track, car, at.Unix())
}
