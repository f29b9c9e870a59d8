// Package proxy is the session/proxy layer between the voice skill and the
// worker process that owns the long-lived music-server session.
//
// The skill side uses Client, a typed wrapper over the request/reply channel
// plus an event subscription that keeps a local cache snapshot current. The
// worker side uses Worker, which serves the domain operations and publishes
// state-change events. The actual music-server SDK sits behind the Dialer
// and Session interfaces.
package proxy

// ItemType classifies a searchable or browsable library item.
type ItemType string

const (
	ItemTrack    ItemType = "track"
	ItemAlbum    ItemType = "album"
	ItemArtist   ItemType = "artist"
	ItemPlaylist ItemType = "playlist"
	ItemGenre    ItemType = "genre"
	ItemStation  ItemType = "station"
	ItemTag      ItemType = "tag"
)

// Searchable reports whether free-text search supports this item type.
func (t ItemType) Searchable() bool {
	switch t {
	case ItemTrack, ItemAlbum, ItemArtist, ItemPlaylist, ItemTag:
		return true
	}
	return false
}

// Filterable reports whether this item type is matched by filtering the
// cached lists instead of searching.
func (t ItemType) Filterable() bool {
	return t == ItemStation || t == ItemGenre
}

// PairState is the worker's pairing progress with a music-server core.
type PairState string

const (
	PairNotStarted     PairState = "not-started"
	PairInProgress     PairState = "in-progress"
	PairWaitingForAuth PairState = "waiting-for-auth"
	PairPaired         PairState = "paired"
	PairFailed         PairState = "failed"
)

// DiscoverState is the worker's core-discovery progress.
type DiscoverState string

const (
	DiscoverNotStarted DiscoverState = "not-started"
	DiscoverInProgress DiscoverState = "in-progress"
	DiscoverDiscovered DiscoverState = "discovered"
	DiscoverFailed     DiscoverState = "failed"
)

// RepeatOption selects the repeat mode of a zone.
type RepeatOption string

const (
	RepeatLoop     RepeatOption = "loop"
	RepeatLoopOne  RepeatOption = "loop_one"
	RepeatDisabled RepeatOption = "disabled"
)

// ControlOption is a transport control command.
type ControlOption string

const (
	ControlPlay      ControlOption = "play"
	ControlPause     ControlOption = "pause"
	ControlPlayPause ControlOption = "playpause"
	ControlStop      ControlOption = "stop"
	ControlPrevious  ControlOption = "previous"
	ControlNext      ControlOption = "next"
)

// State-change event names published by the worker.
const (
	EventZonesChanged     = "zones_changed"
	EventZonesSeekChanged = "zones_seek_changed"
	EventOutputsChanged   = "outputs_changed"
)

// Volume is an output's volume control state.
type Volume struct {
	Type  string `cbor:"type"`
	Value int    `cbor:"value"`
	Min   int    `cbor:"min"`
	Max   int    `cbor:"max"`
	Muted bool   `cbor:"is_muted"`
}

// Output is a playback endpoint attached to a zone.
type Output struct {
	OutputID    string  `cbor:"output_id"`
	ZoneID      string  `cbor:"zone_id"`
	DisplayName string  `cbor:"display_name"`
	Volume      *Volume `cbor:"volume,omitempty"`
}

// NowPlaying describes what a zone is currently playing.
type NowPlaying struct {
	Line1        string `cbor:"line1"`
	Line2        string `cbor:"line2,omitempty"`
	ImageKey     string `cbor:"image_key,omitempty"`
	SeekPosition *int   `cbor:"seek_position,omitempty"`
	Length       *int   `cbor:"length,omitempty"`
}

// Zone is a playback zone known to the music-server core.
type Zone struct {
	ZoneID      string      `cbor:"zone_id"`
	DisplayName string      `cbor:"display_name"`
	State       string      `cbor:"state"`
	Outputs     []string    `cbor:"outputs,omitempty"`
	NowPlaying  *NowPlaying `cbor:"now_playing,omitempty"`
}

// BrowseItem is one entry of a browse listing.
type BrowseItem struct {
	Title    string  `cbor:"title"`
	Subtitle *string `cbor:"subtitle,omitempty"`
	ImageKey *string `cbor:"image_key,omitempty"`
	ItemKey  *string `cbor:"item_key,omitempty"`
	Hint     *string `cbor:"hint,omitempty"`
}

// SkillMetadata is the skill-side routing data attached to a search result:
// how to play the item again later.
type SkillMetadata struct {
	Path       []string  `cbor:"path,omitempty"`
	SessionKey *string   `cbor:"session_key,omitempty"`
	Type       *ItemType `cbor:"type,omitempty"`
}

// EnrichedBrowseItem is a browse item scored against a voice query.
type EnrichedBrowseItem struct {
	Title      string        `cbor:"title"`
	Subtitle   *string       `cbor:"subtitle,omitempty"`
	ImageKey   *string       `cbor:"image_key,omitempty"`
	ItemKey    *string       `cbor:"item_key,omitempty"`
	Hint       *string       `cbor:"hint,omitempty"`
	Meta       SkillMetadata `cbor:"meta"`
	Confidence float64       `cbor:"confidence"`
}
