// Package session sequences the scene lifecycle:
// Config → SceneInit → Dialogue ⇄ Dialogue → Summary → SceneInit …
//
// At most one stage-advancing action runs at a time; a second one fails with
// ErrBusy while the first waits on the model. Memory updates are handed to the
// memory worker and never awaited.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/reply"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/ai"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/history"
	memoryservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/memory"
)

// Stage 表示会话所处的阶段。
type Stage string

const (
	StageConfig    Stage = "config"
	StageSceneInit Stage = "scene_init"
	StageDialogue  Stage = "dialogue"
	StageSummary   Stage = "summary"
)

const defaultHistoryWindow = 20

// MemoryPipeline is the memory worker as seen by the session.
type MemoryPipeline interface {
	Enqueue(job memoryservice.Job) error
	Snapshot() memorymodel.Profile
}

// Emitter receives display events.
type Emitter interface {
	Emit(e event.Event)
}

// Options 配置会话服务。
type Options struct {
	Factory            llm.Factory
	Memory             MemoryPipeline
	Emitter            Emitter
	HistoryWindow      int
	DefaultModel       string
	DefaultTemperature float64
}

// ConfigInput leaves Config. Empty Model and nil Temperature fall back to the
// server defaults; an empty APIKey falls back to the environment credential.
type ConfigInput struct {
	Model       string     `json:"model"`
	APIKey      string     `json:"apiKey,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Modules     module.Set `json:"modules"`
}

// SceneInput starts a scene. An empty StorySummary uses the description
// carried over from the previous scene.
type SceneInput struct {
	StorySummary string `json:"storySummary"`
	NpcList      string `json:"npcList"`
	NpcGoals     string `json:"npcGoals"`
}

// TurnResult is the outcome of one dialogue turn.
type TurnResult struct {
	Utterances []scene.Utterance `json:"utterances"`
	// Fallback reports that the reply could not be parsed and was shown whole.
	Fallback bool `json:"fallback"`
}

// EndResult is the outcome of ending a scene. Errors holds per-module
// failures that did not abort the transition.
type EndResult struct {
	Summary          string                            `json:"summary"`
	SceneDescription string                            `json:"sceneDescription"`
	NpcIntro         *scene.NpcIntro                   `json:"npcIntro,omitempty"`
	Letter           *scene.Letter                     `json:"letter,omitempty"`
	Errors           map[module.Name]event.ErrorDetail `json:"errors,omitempty"`
}

// TranscriptEntry is one stored turn as displayed. NPC replies are reparsed
// from the raw output kept in history.
type TranscriptEntry struct {
	Speaker    scene.Speaker     `json:"speaker"`
	Content    string            `json:"content,omitempty"`
	Utterances []scene.Utterance `json:"utterances,omitempty"`
}

// Snapshot 是会话的只读视图。
type Snapshot struct {
	ID             string                            `json:"id"`
	Stage          Stage                             `json:"stage"`
	Model          string                            `json:"model,omitempty"`
	Modules        module.Set                        `json:"modules,omitempty"`
	Scene          *scene.Scene                      `json:"scene,omitempty"`
	Turns          []scene.Turn                      `json:"turns"`
	Transcript     []TranscriptEntry                 `json:"transcript"`
	PendingSummary string                            `json:"pendingSummary,omitempty"`
	PendingIntro   *scene.NpcIntro                   `json:"pendingIntro,omitempty"`
	LastSummary    string                            `json:"lastSummary,omitempty"`
	LastLetter     *scene.Letter                     `json:"lastLetter,omitempty"`
	StageErrors    map[module.Name]event.ErrorDetail `json:"stageErrors,omitempty"`
}

// Service is the session state machine. Construct with NewService.
type Service struct {
	factory            llm.Factory
	memory             MemoryPipeline
	emitter            Emitter
	window             int
	defaultModel       string
	defaultTemperature float64
	now                func() time.Time

	inflight atomic.Bool

	mu             sync.RWMutex
	id             string
	stage          Stage
	gateway        *ai.Gateway
	modelName      string
	modules        module.Set
	history        *history.Service
	current        *scene.Scene
	scenesStarted  int
	pendingSummary string
	pendingIntro   *scene.NpcIntro
	lastSummary    string
	lastLetter     *scene.Letter
	stageErrors    map[module.Name]event.ErrorDetail
}

// NewService creates a session in StageConfig.
func NewService(opts Options) *Service {
	window := opts.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &Service{
		factory:            opts.Factory,
		memory:             opts.Memory,
		emitter:            opts.Emitter,
		window:             window,
		defaultModel:       opts.DefaultModel,
		defaultTemperature: opts.DefaultTemperature,
		now:                func() time.Time { return time.Now().UTC() },
		id:                 uuid.NewString(),
		stage:              StageConfig,
		history:            history.NewService(),
	}
}

// Stage returns the current stage.
func (s *Service) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// acquire claims the single in-flight slot.
func (s *Service) acquire() error {
	if !s.inflight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Service) release() {
	s.inflight.Store(false)
}

// Configure validates the module configuration and credential, then moves
// Config → SceneInit.
func (s *Service) Configure(ctx context.Context, in ConfigInput) (err error) {
	if err := s.acquire(); err != nil {
		return s.failed("configure", err)
	}
	defer s.release()
	defer func() {
		if err != nil {
			err = s.failed("configure", err)
		}
	}()

	if stage := s.Stage(); stage != StageConfig {
		return wrongStage("configure", stage)
	}

	if err := in.Modules.Validate(); err != nil {
		reason := err.Error()
		field := "modules"
		var invalid *module.InvalidError
		if errors.As(err, &invalid) {
			field = "modules." + string(invalid.Module)
			reason = invalid.Reason
		}
		return &ValidationError{Field: field, Reason: reason}
	}

	modelName := strings.TrimSpace(in.Model)
	if modelName == "" {
		modelName = s.defaultModel
	}
	if modelName == "" {
		return &ValidationError{Field: "model", Reason: "model is required"}
	}

	temperature := s.defaultTemperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	if temperature < 0 || temperature > 2 {
		return &ValidationError{Field: "temperature", Reason: "must be within [0, 2]"}
	}

	if s.factory == nil {
		return &ValidationError{Field: "apiKey", Reason: "no model transport configured"}
	}
	client, err := s.factory(ctx, modelName, strings.TrimSpace(in.APIKey))
	if err != nil {
		return &ValidationError{Field: "apiKey", Reason: err.Error()}
	}

	modules := in.Modules.Normalized()
	s.mu.Lock()
	s.gateway = ai.NewGateway(client, modelName, temperature, modules)
	s.modelName = modelName
	s.modules = modules
	s.stage = StageSceneInit
	s.mu.Unlock()

	log.Info().
		Str("component", "session").
		Str("session_id", s.id).
		Str("model", modelName).
		Bool("memory", modules.Enabled(module.Memory)).
		Bool("letter", modules.Enabled(module.Letter)).
		Msg("session configured")
	s.emitStage(StageSceneInit)
	return nil
}

// BeginScene moves SceneInit → Dialogue. A pending intro from the previous
// Story output becomes the opening turn without a model call; otherwise the
// Dialogue module generates a greeting.
func (s *Service) BeginScene(ctx context.Context, in SceneInput) (utterances []scene.Utterance, err error) {
	if err := s.acquire(); err != nil {
		return nil, s.failed("begin scene", err)
	}
	defer s.release()
	defer func() {
		if err != nil {
			err = s.failed("begin scene", err)
		}
	}()

	s.mu.RLock()
	stage, gateway, carried, intro := s.stage, s.gateway, s.pendingSummary, s.pendingIntro
	s.mu.RUnlock()
	if stage != StageSceneInit {
		return nil, wrongStage("begin scene", stage)
	}

	in.StorySummary = strings.TrimSpace(in.StorySummary)
	in.NpcList = strings.TrimSpace(in.NpcList)
	in.NpcGoals = strings.TrimSpace(in.NpcGoals)
	if in.StorySummary == "" {
		in.StorySummary = carried
	}
	switch {
	case in.StorySummary == "":
		return nil, &ValidationError{Field: "storySummary", Reason: "story summary is required"}
	case in.NpcList == "":
		return nil, &ValidationError{Field: "npcList", Reason: "npc list is required"}
	case in.NpcGoals == "":
		return nil, &ValidationError{Field: "npcGoals", Reason: "npc goals are required"}
	}

	sc := ai.SceneContext{StorySummary: in.StorySummary, NpcList: in.NpcList, NpcGoals: in.NpcGoals}

	var opening scene.Utterance
	if intro != nil {
		opening = intro.Utterance()
	} else {
		jsonMode := gateway.JSONMode(module.Dialogue)
		raw, err := gateway.Invoke(ctx, ai.Request{
			Module: module.Dialogue,
			Text:   ai.GreetingPrompt(sc, jsonMode),
		})
		if err != nil {
			return nil, err
		}
		res, perr := reply.Parse(raw, reply.ModeFor(jsonMode), reply.ShapeSingleGreeting, reply.Options{})
		if perr != nil {
			logFallback(perr)
		}
		opening = res.Greeting
	}

	s.mu.Lock()
	s.scenesStarted++
	current := scene.Scene{
		ID:           uuid.NewString(),
		Index:        s.scenesStarted,
		StorySummary: in.StorySummary,
		NpcList:      in.NpcList,
		NpcGoals:     in.NpcGoals,
		StartedAt:    s.now(),
	}
	s.current = &current
	s.history.Clear()
	appendErr := s.history.Append(scene.Turn{
		Speaker: scene.SpeakerNPC,
		Content: reply.FormatUtterance(opening),
		Format:  scene.FormatText,
	})
	s.pendingSummary = ""
	s.pendingIntro = nil
	s.stage = StageDialogue
	s.mu.Unlock()
	if appendErr != nil {
		return nil, appendErr
	}

	log.Info().
		Str("component", "session").
		Str("session_id", s.id).
		Str("scene", current.Label()).
		Bool("from_intro", intro != nil).
		Msg("scene started")

	utterances = []scene.Utterance{opening}
	s.emitStage(StageDialogue)
	s.emit(event.Event{Kind: event.KindUtterances, Utterances: utterances})
	return utterances, nil
}

// SubmitTurn runs one dialogue exchange. Both turns are appended only after
// the Dialogue module answers; the memory update is enqueued and not awaited.
func (s *Service) SubmitTurn(ctx context.Context, content string) (result TurnResult, err error) {
	if err := s.acquire(); err != nil {
		return TurnResult{}, s.failed("submit turn", err)
	}
	defer s.release()
	defer func() {
		if err != nil {
			err = s.failed("submit turn", err)
		}
	}()

	s.mu.RLock()
	stage, gateway, current := s.stage, s.gateway, s.current
	s.mu.RUnlock()
	if stage != StageDialogue {
		return TurnResult{}, wrongStage("submit turn", stage)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return TurnResult{}, &ValidationError{Field: "content", Reason: "player input is required"}
	}

	memoryEnabled := gateway.Enabled(module.Memory) && s.memory != nil
	memoryContext := ""
	if memoryEnabled {
		memoryContext = ai.FormatMemoryContext(s.memory.Snapshot())
	}

	jsonMode := gateway.JSONMode(module.Dialogue)
	req := ai.DialogueRequest(
		ai.DialogueContext(sceneContext(current), jsonMode, memoryContext),
		s.history.RecentWindow(s.window),
		content,
	)
	raw, err := gateway.Invoke(ctx, req)
	if err != nil {
		return TurnResult{}, err
	}

	mode := reply.ModeFor(jsonMode)
	res, perr := reply.Parse(raw, mode, reply.ShapeDialogueBatch, reply.Options{})
	if perr != nil {
		logFallback(perr)
	}

	turns := []scene.Turn{
		{Speaker: scene.SpeakerPlayer, Content: content},
		{Speaker: scene.SpeakerNPC, Content: raw, Format: mode.Format()},
	}
	if strings.TrimSpace(raw) == "" {
		// keep the exchange in history even when the model returned nothing
		turns[1].Content = reply.FormatUtterance(reply.Fallback(raw))
		turns[1].Format = scene.FormatText
	}
	if err := s.history.Append(turns...); err != nil {
		return TurnResult{}, err
	}

	if memoryEnabled {
		job := memoryservice.Job{Gateway: gateway, SceneLabel: current.Label(), Turns: turns}
		if qerr := s.memory.Enqueue(job); qerr != nil {
			log.Warn().Err(qerr).Str("component", "session").Str("session_id", s.id).Msg("memory update not scheduled")
			s.emit(event.Event{Kind: event.KindError, Error: &event.ErrorDetail{
				Kind:   event.ErrMerge,
				Detail: qerr.Error(),
				Module: string(module.Memory),
			}})
		}
	}

	result = TurnResult{Utterances: res.Utterances, Fallback: perr != nil}
	s.emit(event.Event{Kind: event.KindUtterances, Utterances: result.Utterances})
	return result, nil
}

// EndScene moves Dialogue → Summary. A Summary failure aborts the
// transition; Story and Letter failures are reported per module.
func (s *Service) EndScene(ctx context.Context) (result EndResult, err error) {
	if err := s.acquire(); err != nil {
		return EndResult{}, s.failed("end scene", err)
	}
	defer s.release()
	defer func() {
		if err != nil {
			err = s.failed("end scene", err)
		}
	}()

	s.mu.RLock()
	stage, gateway, current := s.stage, s.gateway, s.current
	s.mu.RUnlock()
	if stage != StageDialogue {
		return EndResult{}, wrongStage("end scene", stage)
	}
	if s.history.Len() == 0 {
		return EndResult{}, &ValidationError{Field: "history", Reason: "no turns to summarize"}
	}

	sc := sceneContext(current)
	transcript := s.history.AsText()

	summary, err := gateway.Invoke(ctx, ai.Request{Module: module.Summary, Text: ai.SummaryPrompt(sc, transcript)})
	if err != nil {
		return EndResult{}, err
	}
	summary = strings.TrimSpace(summary)

	result = EndResult{Summary: summary, SceneDescription: summary}
	stageErrors := map[module.Name]event.ErrorDetail{}
	recordStage := func(name module.Name, err error) {
		detail := detailOf(err)
		detail.Module = string(name)
		stageErrors[name] = *detail
		log.Warn().Err(err).
			Str("component", "session").
			Str("session_id", s.id).
			Str("module", string(name)).
			Msg("stage degraded")
	}

	storyJSON := gateway.JSONMode(module.Story)
	storyRaw, err := gateway.Invoke(ctx, ai.Request{Module: module.Story, Text: ai.StoryPrompt(summary, sc, storyJSON)})
	if err != nil {
		recordStage(module.Story, err)
	} else {
		res, perr := reply.Parse(storyRaw, reply.ModeFor(storyJSON), reply.ShapeSceneAndIntro, reply.Options{PreviousSummary: summary})
		if perr != nil {
			recordStage(module.Story, perr)
		}
		result.SceneDescription = res.Scene.SceneDescription
		result.NpcIntro = res.Scene.NpcIntro
	}

	if gateway.Enabled(module.Letter) {
		letterJSON := gateway.JSONMode(module.Letter)
		letterRaw, err := gateway.Invoke(ctx, ai.Request{
			Module: module.Letter,
			Text:   ai.LetterPrompt(sc, summary, transcript, letterJSON),
		})
		if err != nil {
			recordStage(module.Letter, err)
		} else {
			res, perr := reply.Parse(letterRaw, reply.ModeFor(letterJSON), reply.ShapeLetter, reply.Options{})
			if perr != nil {
				logFallback(perr)
			}
			letter := res.Letter
			result.Letter = &letter
		}
	}
	if len(stageErrors) > 0 {
		result.Errors = stageErrors
	}

	s.mu.Lock()
	s.stage = StageSummary
	s.lastSummary = summary
	s.pendingSummary = result.SceneDescription
	s.pendingIntro = result.NpcIntro
	s.lastLetter = result.Letter
	s.stageErrors = result.Errors
	s.mu.Unlock()

	log.Info().
		Str("component", "session").
		Str("session_id", s.id).
		Str("scene", current.Label()).
		Int("turns", s.history.Len()).
		Int("stage_errors", len(stageErrors)).
		Msg("scene ended")

	s.emitStage(StageSummary)
	sceneEvent := event.Event{Kind: event.KindScene, SceneDescription: result.SceneDescription}
	if result.NpcIntro != nil {
		intro := *result.NpcIntro
		sceneEvent.NpcIntro = &intro
	}
	s.emit(sceneEvent)
	if result.Letter != nil {
		s.emit(event.Event{Kind: event.KindLetter, Letter: result.Letter})
	}
	for _, name := range module.Names() {
		if detail, ok := stageErrors[name]; ok {
			s.emit(event.Event{Kind: event.KindError, Error: &detail})
		}
	}
	return result, nil
}

// NextScene moves Summary → SceneInit, carrying the next scene description
// as the new story summary and keeping the pending intro.
func (s *Service) NextScene() (string, error) {
	if err := s.acquire(); err != nil {
		return "", s.failed("next scene", err)
	}
	defer s.release()

	s.mu.Lock()
	if s.stage != StageSummary {
		stage := s.stage
		s.mu.Unlock()
		return "", s.failed("next scene", wrongStage("next scene", stage))
	}
	s.stage = StageSceneInit
	carried := s.pendingSummary
	s.lastSummary = ""
	s.lastLetter = nil
	s.stageErrors = nil
	s.mu.Unlock()

	s.emitStage(StageSceneInit)
	return carried, nil
}

// ReturnToConfig drops the current scene and module configuration. The
// memory profile is kept.
func (s *Service) ReturnToConfig() error {
	if err := s.acquire(); err != nil {
		return s.failed("return to config", err)
	}
	defer s.release()

	s.mu.Lock()
	if s.stage == StageConfig {
		s.mu.Unlock()
		return s.failed("return to config", wrongStage("return to config", StageConfig))
	}
	s.stage = StageConfig
	s.gateway = nil
	s.modelName = ""
	s.modules = nil
	s.current = nil
	s.history.Clear()
	s.pendingSummary = ""
	s.pendingIntro = nil
	s.lastSummary = ""
	s.lastLetter = nil
	s.stageErrors = nil
	s.mu.Unlock()

	log.Info().Str("component", "session").Str("session_id", s.id).Msg("session returned to config")
	s.emitStage(StageConfig)
	return nil
}

// Snapshot returns a read-only copy of the session state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:             s.id,
		Stage:          s.stage,
		Model:          s.modelName,
		Turns:          s.history.Turns(),
		PendingSummary: s.pendingSummary,
		LastSummary:    s.lastSummary,
	}
	snap.Transcript = transcript(snap.Turns)
	if s.modules != nil {
		snap.Modules = s.modules.Normalized()
	}
	if s.current != nil {
		current := *s.current
		snap.Scene = &current
	}
	if s.pendingIntro != nil {
		intro := *s.pendingIntro
		snap.PendingIntro = &intro
	}
	if s.lastLetter != nil {
		letter := *s.lastLetter
		snap.LastLetter = &letter
	}
	if len(s.stageErrors) > 0 {
		snap.StageErrors = make(map[module.Name]event.ErrorDetail, len(s.stageErrors))
		for name, detail := range s.stageErrors {
			snap.StageErrors[name] = detail
		}
	}
	return snap
}

func transcript(turns []scene.Turn) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(turns))
	for _, turn := range turns {
		entry := TranscriptEntry{Speaker: turn.Speaker}
		if turn.Speaker == scene.SpeakerNPC {
			// Parse always returns a displayable fallback
			res, _ := reply.Parse(turn.Content, reply.ModeOf(turn.Format), reply.ShapeDialogueBatch, reply.Options{})
			entry.Utterances = res.Utterances
		} else {
			entry.Content = turn.Content
		}
		entries = append(entries, entry)
	}
	return entries
}

func sceneContext(current *scene.Scene) ai.SceneContext {
	if current == nil {
		return ai.SceneContext{}
	}
	return ai.SceneContext{
		StorySummary: current.StorySummary,
		NpcList:      current.NpcList,
		NpcGoals:     current.NpcGoals,
	}
}

// failed logs and emits err, then returns it unchanged.
func (s *Service) failed(action string, err error) error {
	detail := detailOf(err)
	log.Warn().Err(err).
		Str("component", "session").
		Str("session_id", s.id).
		Str("action", action).
		Str("kind", string(detail.Kind)).
		Msg("session action failed")
	s.emit(event.Event{Kind: event.KindError, Error: detail})
	return err
}

func (s *Service) emitStage(stage Stage) {
	s.emit(event.Event{Kind: event.KindStage, Stage: string(stage)})
}

func (s *Service) emit(e event.Event) {
	if s.emitter != nil {
		s.emitter.Emit(e)
	}
}

func logFallback(err error) {
	log.Warn().Err(err).Str("component", "session").Msg("model reply parsed with fallback")
}
