package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
)

// CacheLoadNotice is shown when a save was restored from the local cache.
const CacheLoadNotice = "已从缓存加载存档（后端加载失败/网络错误）"

// SaveBackend is the persistence half of the backend API.
type SaveBackend interface {
	SaveGame(ctx context.Context, req backend.SaveRequest) error
	LoadGame(ctx context.Context, name string) (backend.SaveData, error)
	ListSaves(ctx context.Context) ([]backend.SaveSummary, error)
	DeleteSave(ctx context.Context, name string) error
}

// Result is what the UI reports after a persistence operation.
type Result struct {
	Name      string
	Message   string
	FromCache bool
}

// Bridge dual-writes saves to the backend and the local cache. The backend is
// authoritative; the cache serves only when the backend fails.
type Bridge struct {
	api    SaveBackend
	cache  *Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewBridge(api SaveBackend, cache *Cache, logger *zap.Logger) *Bridge {
	return &Bridge{api: api, cache: cache, logger: logger.Named("SaveBridge"), now: time.Now}
}

// Cache exposes the local mirror.
func (b *Bridge) Cache() *Cache { return b.cache }

// DefaultName is the name proposed for a new save.
func (b *Bridge) DefaultName(ctx context.Context) string {
	recs, _ := b.cache.List(ctx)
	return fmt.Sprintf("存档%d", len(recs)+1)
}

// Save stores st under name. An empty name gets the default.
func (b *Bridge) Save(ctx context.Context, st *engine.GameState, name string, isUpdate bool) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = b.DefaultName(ctx)
	} else {
		n, err := engine.ValidateSaveName(name)
		if err != nil {
			return Result{Name: name, Message: err.Error()}, err
		}
		name = n
	}

	cp, err := st.Clone()
	if err != nil {
		return Result{Name: name, Message: "保存失败，请重试"}, err
	}
	cp.Data.Worldline.CurrentScene = st.Scene
	if err := cp.Data.SetExtra("game_theme", st.Theme); err != nil {
		return Result{Name: name, Message: "保存失败，请重试"}, err
	}
	if err := cp.Data.SetExtra("game_tone", string(st.Tone)); err != nil {
		return Result{Name: name, Message: "保存失败，请重试"}, err
	}
	gs, err := json.Marshal(cp.Data)
	if err != nil {
		return Result{Name: name, Message: "保存失败，请重试"}, err
	}

	err = b.api.SaveGame(ctx, backend.SaveRequest{
		SaveName:        name,
		GlobalState:     gs,
		ProtagonistAttr: st.Attributes,
		Difficulty:      st.Difficulty,
		LastOptions:     slices.Clone(st.Options),
	})
	if err != nil {
		b.logger.Warn("Save failed", zap.String("name", name), zap.Error(err))
		if msg, ok := backend.Rejection(err); ok && msg != "" {
			return Result{Name: name, Message: msg}, err
		}
		return Result{Name: name, Message: "保存失败，请重试：" + backend.Detail(err)}, err
	}

	snap, err := SnapshotOf(cp)
	if err == nil {
		err = b.cache.Upsert(ctx, SaveRecord{
			Name:     name,
			Time:     b.now().Format(recordTimeLayout),
			Progress: st.ProgressLabel(),
			State:    snap,
		})
	}
	if err != nil {
		b.logger.Warn("Cache write failed after save", zap.String("name", name), zap.Error(err))
	}

	msg := "游戏已成功保存：" + name
	if isUpdate {
		msg = "游戏已成功更新：" + name
	}
	return Result{Name: name, Message: msg}, nil
}

// Load restores a save, falling back to the cache when the backend fails.
func (b *Bridge) Load(ctx context.Context, name string) (*engine.GameState, Result, error) {
	sd, err := b.api.LoadGame(ctx, name)
	if err == nil {
		st, rerr := restore(name, sd)
		if rerr == nil {
			b.mirror(ctx, name, sd.Timestamp, st)
			return st, Result{Name: name}, nil
		}
		err = rerr
	}
	b.logger.Warn("Backend load failed, trying cache", zap.String("name", name), zap.Error(err))

	rec, cerr := b.cache.Find(ctx, name)
	if cerr == nil && rec.State != nil {
		return rec.State.Restore(name), Result{Name: name, Message: CacheLoadNotice, FromCache: true}, nil
	}
	if msg, ok := backend.Rejection(err); ok && msg != "" {
		return nil, Result{Name: name, Message: msg}, err
	}
	return nil, Result{Name: name, Message: "加载失败，请重试"}, err
}

func (b *Bridge) mirror(ctx context.Context, name, ts string, st *engine.GameState) {
	snap, err := SnapshotOf(st)
	if err != nil {
		b.logger.Warn("Snapshot failed", zap.Error(err))
		return
	}
	t := formatTimestamp(ts)
	if ts == "" {
		t = b.now().Format(recordTimeLayout)
	}
	rec := SaveRecord{Name: name, Time: t, Progress: st.ProgressLabel(), State: snap}
	if err := b.cache.Upsert(ctx, rec); err != nil {
		b.logger.Warn("Cache mirror failed", zap.String("name", name), zap.Error(err))
	}
}

func restore(name string, sd backend.SaveData) (*engine.GameState, error) {
	st := engine.NewGameState()
	data := engine.NewGameData()
	if len(sd.GlobalState) > 0 {
		if err := json.Unmarshal(sd.GlobalState, &data); err != nil {
			return nil, fmt.Errorf("global_state: %w", err)
		}
	}
	st.Data = data
	for _, trait := range engine.Traits {
		if lv := sd.ProtagonistAttr.Get(trait); lv != "" {
			_ = st.Attributes.Set(trait, lv)
		}
	}
	st.Difficulty = sd.Difficulty
	st.Options = slices.Clone(sd.LastOptions)
	st.Scene = data.Worldline.CurrentScene
	st.Unlocked = slices.Clone(data.Worldline.Unlocked)
	st.SetProgress(data.Worldline.ChapterProgress)

	st.Theme = data.Extra("game_theme").String()
	if st.Theme == "" {
		st.Theme = data.Worldview.Str("game_style")
	}
	for _, raw := range []string{data.Extra("game_tone").String(), data.Worldline.Raw("tone").String()} {
		if t := engine.Tone(raw); slices.Contains(engine.Tones, t) {
			st.Tone = t
			break
		}
	}
	if len(data.ImageStyle) > 0 {
		var style engine.ImageStyle
		if json.Unmarshal(data.ImageStyle, &style) == nil && style.Validate() == nil {
			st.Style = style
		}
	}
	st.Loaded = true
	st.LoadedSaveName = name
	st.Screen = engine.ScreenGameplay
	return st, nil
}

// List returns the saves, from the backend when reachable.
func (b *Bridge) List(ctx context.Context) ([]SaveRecord, bool, error) {
	summaries, err := b.api.ListSaves(ctx)
	if err == nil {
		recs, werr := b.cache.Sync(ctx, summaries)
		if werr != nil {
			b.logger.Warn("Cache sync failed", zap.Error(werr))
		}
		return recs, false, nil
	}
	b.logger.Warn("Backend list failed, using cache", zap.Error(err))
	recs, cerr := b.cache.List(ctx)
	if cerr != nil {
		return nil, true, cerr
	}
	return recs, true, nil
}

// Delete removes a save from the backend and then from the cache.
func (b *Bridge) Delete(ctx context.Context, name string) (Result, error) {
	if err := b.api.DeleteSave(ctx, name); err != nil {
		if msg, ok := backend.Rejection(err); ok && msg != "" {
			return Result{Name: name, Message: msg}, err
		}
		return Result{Name: name, Message: "删除失败，请重试"}, err
	}
	if err := b.cache.Remove(ctx, name); err != nil {
		b.logger.Warn("Cache remove failed", zap.String("name", name), zap.Error(err))
	}
	return Result{Name: name}, nil
}
