package store

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
)

// SavesKey is the cache key holding the JSON array of save records.
const SavesKey = "gameSaves"

const recordTimeLayout = "2006/01/02 15:04"

// Snapshot is the part of a session needed to resume it without the backend.
type Snapshot struct {
	Theme      string            `json:"gameTheme"`
	Attributes engine.Attributes `json:"protagonistAttr"`
	Difficulty engine.Difficulty `json:"difficulty,omitempty"`
	Scene      string            `json:"currentScene"`
	Options    []string          `json:"currentOptions"`
	Progress   float64           `json:"chapterProgress"`
	Unlocked   []string          `json:"unlockedDeepBackgrounds"`
	Tone       engine.Tone       `json:"currentTone"`
	Style      engine.ImageStyle `json:"imageStyle"`
	Data       engine.GameData   `json:"gameData"`
}

// SaveRecord is one entry of the local save cache. State is nil for entries
// only known from a backend listing.
type SaveRecord struct {
	Name     string    `json:"name"`
	Time     string    `json:"time"`
	Progress string    `json:"progress"`
	State    *Snapshot `json:"gameState,omitempty"`
}

// SnapshotOf copies the resumable part of st.
func SnapshotOf(st *engine.GameState) (*Snapshot, error) {
	cp, err := st.Clone()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Theme:      cp.Theme,
		Attributes: cp.Attributes,
		Difficulty: cp.Difficulty,
		Scene:      cp.Scene,
		Options:    cp.Options,
		Progress:   cp.Progress,
		Unlocked:   cp.Unlocked,
		Tone:       cp.Tone,
		Style:      cp.Style,
		Data:       cp.Data,
	}, nil
}

// Restore builds a gameplay state from the snapshot.
func (s *Snapshot) Restore(name string) *engine.GameState {
	st := engine.NewGameState()
	st.Theme = s.Theme
	st.Attributes = s.Attributes
	st.Difficulty = s.Difficulty
	st.Scene = s.Scene
	st.Options = slices.Clone(s.Options)
	st.Unlocked = slices.Clone(s.Unlocked)
	if s.Tone != "" {
		st.Tone = s.Tone
	}
	st.Style = s.Style
	st.Data = s.Data
	st.SetProgress(s.Progress)
	st.Loaded = true
	st.LoadedSaveName = name
	st.Screen = engine.ScreenGameplay
	return st
}

// Cache is the local mirror of the backend's saves.
type Cache struct {
	kv KV
}

func NewCache(kv KV) *Cache { return &Cache{kv: kv} }

// List returns the cached records; a missing key is an empty list.
func (c *Cache) List(ctx context.Context) ([]SaveRecord, error) {
	raw, err := c.kv.Get(ctx, SavesKey)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []SaveRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, wrap(err, "decode save cache")
	}
	return recs, nil
}

func (c *Cache) write(ctx context.Context, recs []SaveRecord) error {
	if recs == nil {
		recs = []SaveRecord{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return wrap(err, "encode save cache")
	}
	return c.kv.Set(ctx, SavesKey, raw)
}

// Upsert replaces the record with the same name or appends it.
func (c *Cache) Upsert(ctx context.Context, rec SaveRecord) error {
	recs, err := c.List(ctx)
	if err != nil {
		return err
	}
	if i := slices.IndexFunc(recs, func(r SaveRecord) bool { return r.Name == rec.Name }); i >= 0 {
		recs[i] = rec
	} else {
		recs = append(recs, rec)
	}
	return c.write(ctx, recs)
}

// Find returns the named record or ErrNotFound.
func (c *Cache) Find(ctx context.Context, name string) (SaveRecord, error) {
	recs, err := c.List(ctx)
	if err != nil {
		return SaveRecord{}, err
	}
	for _, r := range recs {
		if r.Name == name {
			return r, nil
		}
	}
	return SaveRecord{}, ErrNotFound
}

// Remove drops the named record.
func (c *Cache) Remove(ctx context.Context, name string) error {
	recs, err := c.List(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, slices.DeleteFunc(recs, func(r SaveRecord) bool { return r.Name == name }))
}

// Sync replaces the cached list with the backend's listing. Snapshots of
// names that survive are kept so the cache can still serve them.
func (c *Cache) Sync(ctx context.Context, summaries []backend.SaveSummary) ([]SaveRecord, error) {
	old, err := c.List(ctx)
	if err != nil {
		old = nil
	}
	recs := make([]SaveRecord, 0, len(summaries))
	for _, s := range summaries {
		rec := SaveRecord{Name: s.Name, Time: formatTimestamp(s.Timestamp)}
		chapter := s.Chapter
		if chapter == "" {
			chapter = "第一章"
		}
		rec.Progress = chapter + " 0%"
		if i := slices.IndexFunc(old, func(r SaveRecord) bool { return r.Name == s.Name }); i >= 0 {
			rec.State = old[i].State
			if old[i].Progress != "" {
				rec.Progress = old[i].Progress
			}
		}
		recs = append(recs, rec)
	}
	return recs, c.write(ctx, recs)
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04"}

func formatTimestamp(ts string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t.Format(recordTimeLayout)
		}
	}
	return ts
}
