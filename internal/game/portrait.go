package game

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/visual"
)

const (
	defaultPortraitPoll = 2 * time.Second
	defaultPortraitWait = 5 * time.Minute
)

// ErrNoPortrait means the session has nothing to reveal: images are disabled
// or the backend did not assign a game id.
var ErrNoPortrait = errors.New("no protagonist portrait")

// WaitPortrait fetches the protagonist portrait before the first scene. A
// portrait url on the session is fetched once; otherwise the conventional
// path is polled until the image appears or the wait runs out. On success
// main_character is recorded on st.
func (c *Controller) WaitPortrait(ctx context.Context, st *engine.GameState) (visual.Background, error) {
	gameID := st.Data.Extra("game_id").String()
	if c.visual == nil || gameID == "" {
		return visual.Background{}, ErrNoPortrait
	}

	var (
		u   string
		img image.Image
		err error
	)
	if raw := st.Data.Extra("main_character").Get("image_url").String(); raw != "" {
		u = c.visual.Resolve(raw)
		img, err = c.visual.Preload(ctx, u)
	} else {
		u = c.visual.Resolve("/initial/main_character/" + url.PathEscape(gameID) + "/main_character.png")
		img, err = c.pollPortrait(ctx, u)
	}
	if err != nil {
		c.logger.Info("Portrait unavailable, skipping", zap.String("game_id", gameID), zap.Error(err))
		return visual.Background{}, err
	}

	if err := st.Data.SetExtra("main_character", map[string]string{"game_id": gameID, "image_url": u}); err != nil {
		c.logger.Warn("Recording portrait failed", zap.Error(err))
	}
	return visual.Background{URL: u, Image: img}, nil
}

func (c *Controller) pollPortrait(ctx context.Context, u string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PortraitWait)
	defer cancel()
	ticker := time.NewTicker(c.cfg.PortraitPoll)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		img, err := c.visual.Preload(ctx, u)
		if err == nil {
			return img, nil
		}
		c.logger.Debug("Portrait not ready", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("portrait not ready after %d attempts: %w", attempt, ctx.Err())
		case <-ticker.C:
		}
	}
}
