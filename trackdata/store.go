// Package trackdata implements the external track-metadata store of §6.5:
// a layered SegmentStore (in-memory cache -> local JSON file -> remote KV ->
// LLM generator), grounded in
// original_source/coaching-agent/track_metadata_manager.py's Firebase/local/
// LLM fallback chain, with the KV tier over plain HTTP standing in for that
// file's Firebase cache.
package trackdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"racecoach/llm"
	"racecoach/track"
)

// segmentDoc is the wire/file shape of one TrackSegment, matching §6.5's
// generator-output field names.
type segmentDoc struct {
	Name        string  `json:"name"`
	StartPct    float64 `json:"start_pct"`
	EndPct      float64 `json:"end_pct"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
}

func (d segmentDoc) toSegment(id string) track.Segment {
	return track.Segment{
		ID:          id,
		Name:        d.Name,
		Type:        track.SegmentType(d.Type),
		StartFrac:   d.StartPct,
		EndFrac:     d.EndPct,
		Description: d.Description,
	}
}

func fromSegment(s track.Segment) segmentDoc {
	return segmentDoc{Name: s.Name, StartPct: s.StartFrac, EndPct: s.EndFrac, Type: string(s.Type), Description: s.Description}
}

// KVClient is the minimal remote-KV contract the store needs: fetch and
// store a track's segment list by name. A plain HTTP implementation is
// provided by HTTPKVClient; tests can substitute a fake.
type KVClient interface {
	Get(ctx context.Context, track string) ([]track.Segment, bool, error)
	Put(ctx context.Context, track string, segments []track.Segment) error
}

// HTTPKVClient is a thin client over a remote key-value HTTP endpoint,
// standing in for the original's Firebase cache tier.
type HTTPKVClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPKVClient builds a client against baseURL (e.g. "https://kv.internal/tracks").
func NewHTTPKVClient(baseURL string) *HTTPKVClient {
	return &HTTPKVClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPKVClient) Get(ctx context.Context, trackName string) ([]track.Segment, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+trackName, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("trackdata: kv get %s: status %d", trackName, resp.StatusCode)
	}
	var docs []segmentDoc
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, false, err
	}
	return docsToSegments(trackName, docs), true, nil
}

func (c *HTTPKVClient) Put(ctx context.Context, trackName string, segments []track.Segment) error {
	body, err := json.Marshal(segmentsToDocs(segments))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/"+trackName, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("trackdata: kv put %s: status %d", trackName, resp.StatusCode)
	}
	return nil
}

func docsToSegments(trackName string, docs []segmentDoc) []track.Segment {
	out := make([]track.Segment, 0, len(docs))
	for i, d := range docs {
		out = append(out, d.toSegment(fmt.Sprintf("%s-%d", trackName, i)))
	}
	return out
}

func segmentsToDocs(segments []track.Segment) []segmentDoc {
	out := make([]segmentDoc, 0, len(segments))
	for _, s := range segments {
		out = append(out, fromSegment(s))
	}
	return out
}

// Generator asks an LLM for segment boundaries on a track the store has
// never seen before.
type Generator struct {
	client *llm.Client
}

// NewGenerator wraps an llm.Client for segment generation. client may be nil,
// in which case Generate always returns an error.
func NewGenerator(client *llm.Client) *Generator { return &Generator{client: client} }

// Generate asks the model for a full-lap segment breakdown of trackName and
// validates the response per §6.5's contract before returning it.
func (g *Generator) Generate(ctx context.Context, trackName string) ([]track.Segment, error) {
	if g.client == nil {
		return nil, fmt.Errorf("trackdata: no LLM client configured")
	}
	prompt := fmt.Sprintf(
		"List the named corners and straights of the race track %q as a JSON array of objects "+
			"with fields name, start_pct, end_pct (both in [0,1], spans covering the whole lap with "+
			"no gaps or overlaps), type (one of corner, straight, chicane) and description. "+
			"Return only the JSON array.", trackName)

	text, err := g.client.Generate(ctx, prompt, 1024)
	if err != nil {
		return nil, fmt.Errorf("trackdata: generate segments for %s: %w", trackName, err)
	}

	var docs []segmentDoc
	if err := json.Unmarshal([]byte(text), &docs); err != nil {
		return nil, fmt.Errorf("trackdata: parse generated segments for %s: %w", trackName, err)
	}
	segments := docsToSegments(trackName, docs)
	if err := track.Validate(segments); err != nil {
		return nil, fmt.Errorf("trackdata: generated segments for %s failed validation: %w", trackName, err)
	}
	return segments, nil
}

// Store layers an in-memory cache over a local JSON file, a remote KV
// client and an LLM generator, per §6.5's "implementations may layer"
// contract: GetSegments tries each tier in order and backfills the faster
// tiers on a hit from a slower one.
type Store struct {
	localPath string
	kv        KVClient
	generator *Generator

	mu    sync.RWMutex
	cache map[string][]track.Segment
	local map[string][]track.Segment
}

// NewStore builds a Store persisting its local tier at localPath (a JSON
// file mapping track name to its segment list). kv and generator may be
// nil to disable their tiers.
func NewStore(localPath string, kv KVClient, generator *Generator) (*Store, error) {
	s := &Store{localPath: localPath, kv: kv, generator: generator, cache: make(map[string][]track.Segment)}
	if err := s.loadLocal(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadLocal() error {
	data, err := os.ReadFile(s.localPath)
	if os.IsNotExist(err) {
		s.local = make(map[string][]track.Segment)
		return nil
	}
	if err != nil {
		return fmt.Errorf("trackdata: read local cache: %w", err)
	}
	var docs map[string][]segmentDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("trackdata: parse local cache: %w", err)
	}
	s.local = make(map[string][]track.Segment, len(docs))
	for name, ds := range docs {
		s.local[name] = docsToSegments(name, ds)
	}
	return nil
}

func (s *Store) saveLocal() error {
	s.mu.RLock()
	docs := make(map[string][]segmentDoc, len(s.local))
	for name, segs := range s.local {
		docs[name] = segmentsToDocs(segs)
	}
	s.mu.RUnlock()
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.localPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.localPath)
}

// GetSegments implements §6.5's query contract: in-memory -> local JSON ->
// remote KV -> LLM generator, each hit backfilling the faster tiers. A nil
// slice means "no metadata available"; callers fall back to
// track.UnknownSegment.
func (s *Store) GetSegments(ctx context.Context, trackName string) ([]track.Segment, error) {
	s.mu.RLock()
	if segs, ok := s.cache[trackName]; ok {
		s.mu.RUnlock()
		return segs, nil
	}
	local, ok := s.local[trackName]
	s.mu.RUnlock()
	if ok {
		s.backfillCache(trackName, local)
		return local, nil
	}

	if s.kv != nil {
		if segs, found, err := s.kv.Get(ctx, trackName); err == nil && found {
			s.backfillCache(trackName, segs)
			s.backfillLocal(trackName, segs)
			return segs, nil
		}
	}

	if s.generator != nil {
		segs, err := s.generator.Generate(ctx, trackName)
		if err == nil {
			s.backfillCache(trackName, segs)
			s.backfillLocal(trackName, segs)
			if s.kv != nil {
				_ = s.kv.Put(ctx, trackName, segs)
			}
			return segs, nil
		}
	}

	return nil, nil
}

func (s *Store) backfillCache(trackName string, segs []track.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[trackName] = segs
}

func (s *Store) backfillLocal(trackName string, segs []track.Segment) {
	s.mu.Lock()
	s.local[trackName] = segs
	s.mu.Unlock()
	_ = s.saveLocal() // best-effort: a failed write keeps the in-memory/KV tiers authoritative
}
