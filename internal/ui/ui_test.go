package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/game"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/text"
	"github.com/DaanHessen/storyloom/internal/visual"
)

func newTestModel(t *testing.T) *model {
	t.Helper()
	seed, err := engine.NewSessionSeed("ui-test")
	require.NoError(t, err)
	client := backend.NewClient("http://127.0.0.1:1", zap.NewNop())
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)
	m := newModel(context.Background(), Deps{
		Controller: game.NewController(client, nil, game.Config{Seed: seed}, zap.NewNop()),
		Saves:      store.NewBridge(client, store.NewCache(kv), zap.NewNop()),
	})
	return &m
}

// playing puts m on the gameplay screen with a one-segment scene.
func playing(t *testing.T, m *model, options []string) {
	t.Helper()
	st := engine.NewGameState()
	st.Data = engine.DefaultGameData("古堡", engine.DefaultAttributes(), engine.ToneNormal)
	st.Scene = "你推开了古老的木门。门后是一条幽深的走廊。"
	st.SceneID = "scene_1"
	st.Options = options
	m.onTurn(turnMsg{turn: game.Turn{State: st}})
	require.Equal(t, engine.ScreenGameplay, m.screen)
	require.Equal(t, text.Revealing, m.presenter.Phase())
}

func TestSwitchScreenIgnoresUnknown(t *testing.T) {
	m := newTestModel(t)
	assert.Nil(t, m.switchScreen(engine.Screen("nowhere")))
	assert.Equal(t, engine.ScreenMenu, m.screen)
}

func TestSwitchScreenResetsStyleSelection(t *testing.T) {
	m := newTestModel(t)
	m.state.Style = engine.PredefinedStyle(engine.StyleAnime)
	m.styleOilOpen = true
	m.switchScreen(engine.ScreenImageStyleSelection)
	assert.True(t, m.state.Style.IsZero())
	assert.False(t, m.styleOilOpen)
	assert.NotEmpty(t, m.fadeFrame)
}

func TestDifficultyNeedsAPick(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenDifficultySelection)

	m.difficultyKey("enter")
	require.NotNil(t, m.modal)
	assert.Equal(t, "请选择游戏难度", m.modal.text)
	assert.Equal(t, engine.ScreenDifficultySelection, m.screen)
	m.modalKey("enter")

	m.difficultyKey("2")
	assert.Equal(t, engine.Difficulties[1], m.state.Difficulty)
	m.difficultyKey("enter")
	assert.Nil(t, m.modal)
	assert.Equal(t, engine.ScreenToneSelection, m.screen)
}

func TestThemeInputValidates(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenThemeInput)

	m.views.themeInput.SetValue("   ")
	m.themeKey(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.modal)
	assert.Equal(t, engine.ErrThemeEmpty.Error(), m.modal.text)
	m.modal = nil

	m.views.themeInput.SetValue(" 赛博朋克都市 ")
	m.themeKey(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.modal)
	assert.Equal(t, "赛博朋克都市", m.state.Theme)
	assert.Equal(t, engine.ScreenImageStyleSelection, m.screen)
}

func TestTurnRevealsThenShowsOptions(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", "转身离开"})

	m.gameplayKey(" ")
	assert.Equal(t, text.AwaitingOptions, m.presenter.Phase())
	assert.Equal(t, "你推开了古老的木门。门后是一条幽深的走廊。", m.presenter.Visible())

	m.gameplayKey("1")
	assert.Equal(t, -1, m.selected, "options are not selectable before they are shown")

	m.gameplayKey("enter")
	assert.Equal(t, text.OptionsShown, m.presenter.Phase())
	assert.Contains(t, m.renderGameplay(), "转身离开")
}

func TestMenuOptionReturnsToMenu(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", engine.OptionMenu})
	m.gameplayKey(" ")
	m.gameplayKey(" ")

	cmd := m.gameplayKey("2")
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.selected)
	assert.Nil(t, m.gameplayKey("1"), "a second pick is ignored while dispatching")

	m.onDispatch(dispatchMsg{gen: m.dispatchGen, index: 1, option: engine.OptionMenu})
	assert.Equal(t, engine.ScreenMenu, m.screen)
	assert.Equal(t, text.Idle, m.presenter.Phase())
}

func TestStaleDispatchIgnored(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", engine.OptionMenu})
	m.gameplayKey(" ")
	m.gameplayKey(" ")
	m.gameplayKey("2")

	assert.Nil(t, m.onDispatch(dispatchMsg{gen: m.dispatchGen - 1, index: 1, option: engine.OptionMenu}))
	assert.Equal(t, engine.ScreenGameplay, m.screen)
}

func TestStaleBackfillIgnored(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", "转身离开"})

	img := &engine.ImageDescriptor{URL: "/static/x.png"}
	assert.Nil(t, m.onBackfill(backfillMsg{key: "some-other-scene", img: img}))
	assert.Nil(t, m.state.LastImage)
}

func TestExitPromptOffersUpdateForLoadedSave(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", "转身离开"})

	assert.Len(t, m.exitChoices(), 2)
	m.state.Loaded, m.state.LoadedSaveName = true, "旅途"
	assert.Equal(t, []string{"更新原存档（旅途）", "保存为新存档", "不保存"}, m.exitChoices())

	m.gameplayKey("esc")
	require.True(t, m.exitOpen)
	m.gameplayKey("up")
	assert.Equal(t, 2, m.exitCursor)
	m.gameplayKey("enter")
	assert.False(t, m.exitOpen)
	assert.Equal(t, engine.ScreenMenu, m.screen)
}

func TestSavePromptDefaultsAndValidates(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", "转身离开"})

	m.gameplayKey("s")
	require.NotNil(t, m.prompt)
	assert.Equal(t, "存档1", m.views.saveInput.Value())

	m.views.saveInput.SetValue("这个存档名字实在是太长了已经超过了上限")
	m.promptKey(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.modal)
	assert.NotNil(t, m.prompt, "prompt stays open after a bad name")

	m.modal = nil
	m.promptKey(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, m.prompt)
}

func TestSavedTracksLoadedName(t *testing.T) {
	m := newTestModel(t)
	playing(t, m, []string{"走进去", "转身离开"})

	m.onSaved(savedMsg{res: store.Result{Name: "旅途", Message: "游戏已保存为：旅途"}})
	assert.True(t, m.state.Loaded)
	assert.Equal(t, "旅途", m.state.LoadedSaveName)
	require.NotNil(t, m.modal)
	assert.Equal(t, "保存成功", m.modal.title)
}

func TestSaveListHasNoLocalRename(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenSaveManagement)
	m.onSaves(savesMsg{recs: []store.SaveRecord{{Name: "旅途"}}})

	assert.Nil(t, m.savesKey("r"))
	assert.Nil(t, m.prompt)
	assert.Equal(t, []store.SaveRecord{{Name: "旅途"}}, m.saves)
	assert.NotContains(t, m.renderSaves(), "重命名")
}

func TestLoadedSaveShowsInfoPanelFirst(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenSaveManagement)
	st := engine.NewGameState()
	st.Data = engine.DefaultGameData("古堡", engine.DefaultAttributes(), engine.ToneNormal)
	st.Data.Worldview["world_basic_setting"] = "雾中的古堡群"
	st.Data.Worldline.CurrentChapter = "chapter2"
	st.SetProgress(42.5)
	st.Scene = "你推开了古老的木门。门后是一条幽深的走廊。"
	st.Options = []string{"走进去"}
	st.Loaded, st.LoadedSaveName = true, "旅途"

	m.onLoaded(loadedMsg{st: st, res: store.Result{Name: "旅途"}})
	assert.Equal(t, engine.ScreenSetting, m.screen)
	assert.Equal(t, text.Idle, m.presenter.Phase(), "scene waits for confirmation")
	assert.Contains(t, m.renderSetting(), "游戏信息")
	assert.Contains(t, m.settingMarkdown(), "雾中的古堡群")
	assert.Contains(t, m.settingMarkdown(), "第二章，进度：42.5%")

	m.settingKey(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, engine.ScreenGameplay, m.screen)
	assert.Equal(t, text.Revealing, m.presenter.Phase())
	assert.Equal(t, []string{"走进去", "继续前进"}, m.state.Options)
	assert.Equal(t, "旅途", m.state.LoadedSaveName)
	assert.NotContains(t, m.renderSetting(), "游戏信息")
}

func TestPortraitPrecedesFirstScene(t *testing.T) {
	m := newTestModel(t)
	m.state.Theme = "古堡"
	m.switchScreen(engine.ScreenLoading)
	st, err := m.state.Clone()
	require.NoError(t, err)
	require.NoError(t, st.Data.SetExtra("main_character", map[string]string{"game_id": "g1", "image_url": "/p.png"}))

	m.onPortrait(portraitMsg{st: st, bg: visual.Background{URL: "http://127.0.0.1:5001/p.png"}})
	assert.Equal(t, engine.ScreenPortrait, m.screen)
	assert.False(t, m.loading)
	assert.Equal(t, "g1", m.state.Data.Extra("main_character").Get("game_id").String())
	assert.Contains(t, m.renderPortrait(), "你的主角")

	assert.Nil(t, m.portraitKey("x"))
	assert.Equal(t, engine.ScreenPortrait, m.screen)
	require.NotNil(t, m.portraitKey("enter"))
	assert.Equal(t, engine.ScreenLoading, m.screen)
	assert.True(t, m.loading)
	assert.Equal(t, "正在生成开场剧情...", m.loadingLabel)
	assert.Empty(t, m.portrait.URL)
}

func TestSkippedPortraitGoesStraightToFirstScene(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenLoading)
	st, err := m.state.Clone()
	require.NoError(t, err)

	require.NotNil(t, m.onPortrait(portraitMsg{st: st, err: game.ErrNoPortrait}))
	assert.Equal(t, engine.ScreenLoading, m.screen)
	assert.True(t, m.loading)
	assert.Equal(t, "正在生成开场剧情...", m.loadingLabel)
}

func TestLoadFailureShowsMessage(t *testing.T) {
	m := newTestModel(t)
	m.switchScreen(engine.ScreenSaveManagement)
	m.onLoaded(loadedMsg{res: store.Result{Message: "读取存档失败"}, err: assert.AnError})
	require.NotNil(t, m.modal)
	assert.Equal(t, "加载失败", m.modal.title)
	assert.Equal(t, engine.ScreenSaveManagement, m.screen)
}
