package factories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiceturn/core"
	"voiceturn/device/wsmic"
	audioev "voiceturn/events/audio"
	remoteev "voiceturn/events/remote"
	"voiceturn/services/avatarspeech"
	openaiconv "voiceturn/services/openai/conversation"
	openaitrans "voiceturn/services/openai/transcription"
	"voiceturn/session"
	"voiceturn/stores"
	"voiceturn/stores/goals"
	"voiceturn/stores/transcript"
	"voiceturn/stores/webhook"
	"voiceturn/transports/avatar"
)

// SessionManager owns one voice session end to end: remote avatar session,
// microphone, handler pipeline, and teardown. Open and Close bracket the
// session; Close is idempotent and persists the conversation exactly once.
type SessionManager struct {
	settings SettingsConfig
	keys     APIKeys
	logger   *core.Logger

	transcriber *openaitrans.Service
	llm         *openaiconv.Service
	store       stores.ConversationStore
	goals       stores.GoalStore

	mu        sync.Mutex
	sess      *session.Session
	transport *avatar.Transport
	speech    *avatarspeech.Service
	pipeline  *Pipeline
	mic       *wsmic.Source
	logWriter *core.SessionLogWriter
	cancel    context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func NewSessionManager(settings SettingsConfig, keys APIKeys, logger *core.Logger) (*SessionManager, error) {
	if logger == nil {
		logger = core.GetLogger()
	}
	settings.InjectAPIKeys(keys)

	transcriber, err := openaitrans.NewService(openaitrans.Config{
		APIKey:   keys.OpenAI,
		Model:    settings.OpenAI.TranscribeModel,
		Language: settings.OpenAI.Language,
		BaseURL:  settings.OpenAI.BaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}

	llm, err := openaiconv.NewService(openaiconv.Config{
		APIKey:       keys.OpenAI,
		Model:        settings.OpenAI.ChatModel,
		MaxTokens:    settings.OpenAI.MaxTokens,
		Temperature:  settings.OpenAI.Temperature,
		SystemPrompt: settings.OpenAI.SystemPrompt,
		BaseURL:      settings.OpenAI.BaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(settings.Store, logger)
	if err != nil {
		return nil, err
	}

	var goalStore stores.GoalStore
	if settings.Store.GoalDir != "" {
		goalStore, err = goals.NewStore(settings.Store.GoalDir, llm, logger)
		if err != nil {
			return nil, err
		}
	}

	return &SessionManager{
		settings:    settings,
		keys:        keys,
		logger:      logger,
		transcriber: transcriber,
		llm:         llm,
		store:       store,
		goals:       goalStore,
		done:        make(chan struct{}),
	}, nil
}

func buildStore(settings StoreSettings, logger *core.Logger) (stores.ConversationStore, error) {
	switch settings.Kind {
	case "webhook":
		if settings.Webhook.URL == "" {
			return nil, fmt.Errorf("store: webhook kind requires a url")
		}
		return webhook.NewStore(settings.Webhook, logger), nil
	case "", "transcript":
		dir := settings.TranscriptDir
		if dir == "" {
			dir = "./transcripts"
		}
		return transcript.NewStore(dir, logger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("store: unknown kind %q", settings.Kind)
	}
}

// Open brings the session up: provision the remote avatar session, start
// the handler pipeline, accept the microphone, and drive capture ticks
// until the session closes. Any failure during open tears down everything
// already started and returns the error.
func (m *SessionManager) Open(parent context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		return nil, fmt.Errorf("%w: session already open", core.ErrStateConflict)
	}

	ctx, cancel := context.WithCancel(parent)

	logger := m.logger
	sess := session.NewSession(logger)
	if m.settings.LogDir != "" {
		writer, err := core.NewSessionLogWriter(m.settings.LogDir, sess.ID)
		if err != nil {
			logger.With(map[string]any{"error": err}).Warn("session log disabled")
		} else {
			m.logWriter = writer
			sess.Logger = core.NewSessionLogger(logger, writer).With(map[string]any{"session_id": sess.ID})
		}
	}

	transport := avatar.NewTransport(m.settings.Avatar, sess.Logger)
	speech := avatarspeech.NewService(transport, sess.Logger)

	pipeline, err := BuildPipeline(m.settings, PipelineServices{
		Transcriber: m.transcriber,
		LLM:         m.llm,
		Speech:      speech,
		Interrupter: speech,
	}, sess)
	if err != nil {
		return nil, m.abortOpen(sess, cancel, err)
	}

	sess.Tracks = session.NewMediaTrackManager(
		func() { m.onTracksReady(sess) },
		func(missing core.TrackKind) {
			sess.Logger.With(map[string]any{"missing": string(missing)}).Warn("presentation degraded")
		},
		sess.Logger,
	)

	if err := sess.Machine.Apply(session.StateConnecting); err != nil {
		return nil, m.abortOpen(sess, cancel, err)
	}

	if err := pipeline.Runner.Start(ctx); err != nil {
		return nil, m.abortOpen(sess, cancel, err)
	}

	// Remote signals enter the pipeline at the head; track events also feed
	// the track manager directly since composition is not a handler concern.
	sink := func(event core.IEvent) {
		switch e := event.(type) {
		case *remoteev.TrackSubscribedEvent:
			sess.Tracks.Attach(e.Track)
		case *remoteev.TrackUnsubscribedEvent:
			sess.Tracks.Detach(e.Track)
		}
		pipeline.Runner.Push(event)
	}

	if _, err := transport.Open(ctx, sink); err != nil {
		pipeline.Runner.Stop()
		return nil, m.abortOpen(sess, cancel, err)
	}
	sess.RemoteID = transport.SessionID()

	mic := wsmic.NewSource(m.settings.Mic, sess.Logger)
	if err := mic.Start(); err != nil {
		transport.Close(context.Background())
		pipeline.Runner.Stop()
		return nil, m.abortOpen(sess, cancel, err)
	}

	m.sess = sess
	m.transport = transport
	m.speech = speech
	m.pipeline = pipeline
	m.mic = mic
	m.cancel = cancel

	go m.captureLoop(ctx)
	go m.monitor(ctx)

	sess.Logger.Info("session opened")
	return sess, nil
}

// abortOpen applies the fatal-error contract to a session that failed to
// open: force the machine to Closed, run the persistence step on whatever
// history exists, and return the cause.
func (m *SessionManager) abortOpen(sess *session.Session, cancel context.CancelFunc, cause error) error {
	sess.Machine.Apply(session.StateClosed)
	cancel()

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()
	m.persist(persistCtx, sess)

	if m.logWriter != nil {
		m.logWriter.Close()
		m.logWriter = nil
	}
	return cause
}

// persist hands the session history to the configured stores. Failures are
// logged and swallowed; persistence must never block a teardown.
func (m *SessionManager) persist(ctx context.Context, sess *session.Session) {
	if m.store != nil {
		if err := m.store.Save(ctx, sess.ID, sess.History.Messages()); err != nil {
			sess.Logger.With(map[string]any{"error": err}).Error("conversation persistence failed")
		}
	}
	if m.goals != nil {
		if err := m.goals.Save(ctx, sess.ID, sess.History.Messages()); err != nil {
			sess.Logger.With(map[string]any{"error": err}).Error("goal persistence failed")
		}
	}
}

// onTracksReady fires when both presentation tracks are attached: the
// session becomes ready and capture is allowed to arm.
func (m *SessionManager) onTracksReady(sess *session.Session) {
	if err := sess.Machine.Apply(session.StateReady); err != nil {
		if !errors.Is(err, core.ErrStateConflict) {
			sess.Logger.With(map[string]any{"error": err}).Warn("ready transition failed")
		}
		return
	}
	sess.Logger.Info("presentation ready")
}

// captureLoop polls the microphone at the frame cadence and injects frames
// at the pipeline head. Device availability transitions arm and disarm the
// detector and recorder.
func (m *SessionManager) captureLoop(ctx context.Context) {
	tick := time.Duration(m.settings.TickMS) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	available := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			frame, err := m.mic.ReadFrame()
			if err == nil {
				if !available {
					available = true
					m.armCapture()
				}
				m.pipeline.Runner.Push(&audioev.FrameInputEvent{Frame: frame})
				continue
			}
			if errors.Is(err, core.ErrDeviceUnavailable) && available {
				available = false
				m.disarmCapture()
			}
			break
		}
	}
}

func (m *SessionManager) armCapture() {
	m.pipeline.VAD.AttachSource()
	m.pipeline.Recording.SetAvailable(true)
	if err := m.pipeline.VAD.Enable(); err != nil {
		m.sess.Logger.With(map[string]any{"error": err}).Error("detector enable failed")
		return
	}
	m.sess.Logger.Info("microphone armed")
}

func (m *SessionManager) disarmCapture() {
	m.pipeline.VAD.DetachSource()
	m.pipeline.Recording.SetAvailable(false)
	m.sess.Logger.Warn("microphone lost")
}

// monitor closes the session on fatal pipeline errors, context
// cancellation, or the session timeout.
func (m *SessionManager) monitor(ctx context.Context) {
	var timerC <-chan time.Time
	if m.settings.SessionTimeoutMS > 0 {
		timer := time.NewTimer(time.Duration(m.settings.SessionTimeoutMS) * time.Millisecond)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case err := <-m.pipeline.State.Fatal():
		m.sess.Logger.With(map[string]any{"error": err}).Error("closing session on fatal error")
	case <-timerC:
		m.sess.Logger.Warn("session timeout reached")
	case <-ctx.Done():
	}
	m.Close()
}

// Done is closed once the session has fully shut down.
func (m *SessionManager) Done() <-chan struct{} {
	return m.done
}

// Close tears the session down in order: stop capture, stop the pipeline,
// close the remote session, then persist the conversation. Subsequent
// calls are no-ops.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		sess := m.sess
		m.mu.Unlock()
		if sess == nil {
			close(m.done)
			return
		}

		sess.Machine.Apply(session.StateClosed)
		m.pipeline.VAD.Disable()
		m.pipeline.Recording.Cancel()
		if m.cancel != nil {
			m.cancel()
		}

		if err := m.mic.Close(); err != nil {
			sess.Logger.With(map[string]any{"error": err}).Warn("mic close failed")
		}
		if err := m.pipeline.Runner.Stop(); err != nil {
			sess.Logger.With(map[string]any{"error": err}).Warn("pipeline stop failed")
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.transport.Close(closeCtx); err != nil {
			sess.Logger.With(map[string]any{"error": err}).Warn("remote session close failed")
		}
		sess.Tracks.Teardown()

		m.persist(closeCtx, sess)

		sess.Logger.Info("session closed")
		if m.logWriter != nil {
			m.logWriter.Close()
		}
		close(m.done)
	})
}
