package session

import (
	"sync"

	"voiceturn/core"
)

// MediaTrackManager tracks subscribed remote media tracks and decides when
// the presentation sink is complete. Readiness means at least one audio and
// one video track are attached; the onReady callback fires exactly once per
// rise, and onDegraded fires when an unsubscribe drops the set below that
// bar.
type MediaTrackManager struct {
	mu         sync.Mutex
	tracks     map[string]core.TrackHandle
	ready      bool
	onReady    func()
	onDegraded func(missing core.TrackKind)
	logger     *core.Logger
}

func NewMediaTrackManager(onReady func(), onDegraded func(missing core.TrackKind), logger *core.Logger) *MediaTrackManager {
	return &MediaTrackManager{
		tracks:     make(map[string]core.TrackHandle),
		onReady:    onReady,
		onDegraded: onDegraded,
		logger:     logger,
	}
}

// Attach registers a subscribed track. Re-attaching a known track ID is a
// no-op.
func (m *MediaTrackManager) Attach(track core.TrackHandle) {
	m.mu.Lock()
	if _, seen := m.tracks[track.ID]; seen {
		m.mu.Unlock()
		return
	}
	m.tracks[track.ID] = track
	fire := !m.ready && m.complete()
	if fire {
		m.ready = true
	}
	m.mu.Unlock()

	m.logger.With(map[string]any{"track_id": track.ID, "kind": string(track.Kind)}).Info("track attached")
	if fire && m.onReady != nil {
		m.onReady()
	}
}

// Detach removes a track. If the removal breaks completeness, onDegraded
// reports which kind went missing.
func (m *MediaTrackManager) Detach(track core.TrackHandle) {
	m.mu.Lock()
	if _, seen := m.tracks[track.ID]; !seen {
		m.mu.Unlock()
		return
	}
	delete(m.tracks, track.ID)
	degraded := m.ready && !m.complete()
	if degraded {
		m.ready = false
	}
	m.mu.Unlock()

	m.logger.With(map[string]any{"track_id": track.ID, "kind": string(track.Kind)}).Info("track detached")
	if degraded && m.onDegraded != nil {
		m.onDegraded(track.Kind)
	}
}

func (m *MediaTrackManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Teardown drops every track unconditionally. Used on session close; no
// degraded notification fires, the session is going away.
func (m *MediaTrackManager) Teardown() {
	m.mu.Lock()
	n := len(m.tracks)
	m.tracks = make(map[string]core.TrackHandle)
	m.ready = false
	m.mu.Unlock()
	if n > 0 {
		m.logger.With(map[string]any{"tracks": n}).Info("media tracks torn down")
	}
}

// complete requires m.mu held.
func (m *MediaTrackManager) complete() bool {
	var audio, video bool
	for _, t := range m.tracks {
		switch t.Kind {
		case core.TrackAudio:
			audio = true
		case core.TrackVideo:
			video = true
		}
	}
	return audio && video
}
