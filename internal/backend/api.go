package backend

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// WorldviewRequest is the body of /generate-worldview.
type WorldviewRequest struct {
	GameTheme       string            `json:"gameTheme"`
	ProtagonistAttr engine.Attributes `json:"protagonistAttr"`
	Difficulty      engine.Difficulty `json:"difficulty"`
	ToneKey         engine.Tone       `json:"toneKey"`
	ImageStyle      engine.ImageStyle `json:"imageStyle"`
}

// GenerateWorldview asks the backend to author a new world.
func (c *Client) GenerateWorldview(ctx context.Context, req WorldviewRequest) (engine.GameData, error) {
	res, err := c.post(ctx, "/generate-worldview", req, GenerationTimeout)
	if err != nil {
		return engine.GameData{}, err
	}
	gs := res.Get("globalState")
	if !gs.IsObject() {
		return engine.GameData{}, payloadError("后端返回的数据中缺少 globalState 字段")
	}
	if !gs.Get("core_worldview").IsObject() {
		return engine.GameData{}, payloadError("返回的世界观数据格式不正确：缺少 core_worldview")
	}
	var d engine.GameData
	if err := d.UnmarshalJSON([]byte(gs.Raw)); err != nil {
		return engine.GameData{}, payloadError(err.Error())
	}
	return d, nil
}

// OptionRequest is the body of /generate-option.
type OptionRequest struct {
	Option             string                  `json:"option"`
	GlobalState        engine.GameData         `json:"globalState"`
	OptionIndex        int                     `json:"optionIndex"`
	SceneID            *string                 `json:"sceneId"`
	PreviousSceneID    string                  `json:"previousSceneId,omitempty"`
	PreviousSceneImage *engine.ImageDescriptor `json:"previousSceneImage,omitempty"`
	PreviousSceneText  string                  `json:"previousSceneText,omitempty"`
}

// OptionResult is the loosely typed optionData of a /generate-option reply.
type OptionResult struct {
	Scene string
	// Options is nil when next_options was missing or not an array.
	Options    []string
	Image      *engine.ImageDescriptor
	FlowUpdate json.RawMessage
}

// GenerateOption resolves a player's choice into the next scene.
func (c *Client) GenerateOption(ctx context.Context, req OptionRequest) (OptionResult, error) {
	res, err := c.post(ctx, "/generate-option", req, GenerationTimeout)
	if err != nil {
		return OptionResult{}, err
	}
	data := res.Get("optionData")
	if !data.IsObject() {
		return OptionResult{}, payloadError("missing optionData")
	}
	out := OptionResult{
		Scene: data.Get("scene").String(),
		Image: engine.ImageFromResult(data.Get("scene_image")),
	}
	if opts := data.Get("next_options"); opts.IsArray() {
		out.Options = []string{}
		for _, o := range opts.Array() {
			if o.Type == gjson.String {
				out.Options = append(out.Options, o.String())
			}
		}
	} else if opts.Exists() {
		c.logger.Warn("next_options is not an array", zap.String("type", opts.Type.String()))
	}
	if fu := data.Get("flow_update"); fu.IsObject() {
		out.FlowUpdate = json.RawMessage(fu.Raw)
	}
	return out, nil
}

// PregenerateRequest is the body of /pregenerate-next-layers.
type PregenerateRequest struct {
	GlobalState       engine.GameData         `json:"globalState"`
	CurrentOptions    []string                `json:"currentOptions"`
	SceneID           string                  `json:"sceneId"`
	CurrentSceneImage *engine.ImageDescriptor `json:"currentSceneImage"`
	CurrentSceneText  string                  `json:"currentSceneText"`
}

// Pregenerate hints the backend to prepare the scenes behind the current options.
// It returns the scene id the backend chose, "" when it kept ours.
func (c *Client) Pregenerate(ctx context.Context, req PregenerateRequest) (string, error) {
	res, err := c.post(ctx, "/pregenerate-next-layers", req, GenerationTimeout)
	if err != nil {
		return "", err
	}
	return res.Get("sceneId").String(), nil
}

// SceneImageRequest is the body of /generate-scene-image.
type SceneImageRequest struct {
	SceneDescription string          `json:"sceneDescription"`
	GlobalState      json.RawMessage `json:"globalState"`
	Style            json.RawMessage `json:"style"`
	ViewportWidth    int             `json:"viewportWidth"`
	ViewportHeight   int             `json:"viewportHeight"`
}

// GenerateSceneImage requests an image for a scene that arrived without one.
func (c *Client) GenerateSceneImage(ctx context.Context, req SceneImageRequest) (*engine.ImageDescriptor, error) {
	res, err := c.post(ctx, "/generate-scene-image", req, GenerationTimeout)
	if err != nil {
		return nil, err
	}
	img := engine.ImageFromResult(res.Get("image"))
	if img == nil {
		return nil, payloadError("image reply without url")
	}
	return img, nil
}

// GenerateEnding asks the backend for the final ending of the current world.
func (c *Client) GenerateEnding(ctx context.Context, gs engine.GameData) (engine.EndingPrediction, error) {
	body := struct {
		GlobalState engine.GameData `json:"globalState"`
	}{gs}
	res, err := c.post(ctx, "/generate-ending", body, GenerationTimeout)
	if err != nil {
		return engine.EndingPrediction{}, err
	}
	e := res.Get("ending")
	if !e.IsObject() {
		return engine.EndingPrediction{}, payloadError("missing ending")
	}
	return engine.EndingPrediction{
		MainTone: e.Get("main_tone").String(),
		Content:  e.Get("content").String(),
	}, nil
}

// SaveRequest is the body of /save-game.
type SaveRequest struct {
	SaveName        string            `json:"saveName"`
	GlobalState     json.RawMessage   `json:"globalState"`
	ProtagonistAttr engine.Attributes `json:"protagonistAttr"`
	Difficulty      engine.Difficulty `json:"difficulty"`
	LastOptions     []string          `json:"lastOptions"`
}

// SaveGame stores a snapshot on the backend.
func (c *Client) SaveGame(ctx context.Context, req SaveRequest) error {
	_, err := c.post(ctx, "/save-game", req, StorageTimeout)
	return err
}

// SaveData is a snapshot as returned by /load-game.
type SaveData struct {
	GlobalState     json.RawMessage   `json:"global_state"`
	ProtagonistAttr engine.Attributes `json:"protagonist_attr"`
	Difficulty      engine.Difficulty `json:"difficulty"`
	LastOptions     []string          `json:"last_options"`
	Timestamp       string            `json:"timestamp"`
}

// LoadGame fetches a named snapshot.
func (c *Client) LoadGame(ctx context.Context, name string) (SaveData, error) {
	body := struct {
		SaveName string `json:"saveName"`
	}{name}
	res, err := c.post(ctx, "/load-game", body, StorageTimeout)
	if err != nil {
		return SaveData{}, err
	}
	sd := res.Get("saveData")
	if !sd.IsObject() {
		return SaveData{}, payloadError("missing saveData")
	}
	var out SaveData
	if err := json.Unmarshal([]byte(sd.Raw), &out); err != nil {
		return SaveData{}, payloadError(err.Error())
	}
	return out, nil
}

// SaveSummary is one entry of /list-saves.
type SaveSummary struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Chapter   string `json:"chapter"`
}

// ListSaves returns the saves known to the backend.
func (c *Client) ListSaves(ctx context.Context) ([]SaveSummary, error) {
	res, err := c.get(ctx, "/list-saves", StorageTimeout)
	if err != nil {
		return nil, err
	}
	var out []SaveSummary
	for _, s := range res.Get("saves").Array() {
		out = append(out, SaveSummary{
			Name:      s.Get("name").String(),
			Timestamp: s.Get("timestamp").String(),
			Chapter:   s.Get("chapter").String(),
		})
	}
	return out, nil
}

// DeleteSave removes a named snapshot.
func (c *Client) DeleteSave(ctx context.Context, name string) error {
	body := struct {
		SaveName string `json:"saveName"`
	}{name}
	_, err := c.post(ctx, "/delete-save", body, StorageTimeout)
	return err
}
