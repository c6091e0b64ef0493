package core

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackHandle identifies one subscribed remote media track. The engine never
// touches track payloads; handles exist so the track manager can compose and
// tear down the presentation sink.
type TrackHandle struct {
	ID   string
	Kind TrackKind
}
