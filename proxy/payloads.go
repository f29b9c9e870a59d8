package proxy

import (
	"sync"
	"time"

	"playlink/message"
)

// AuthSettings is the credential set obtained by pairing with a core.
type AuthSettings struct {
	Host     string `cbor:"host"`
	Port     int    `cbor:"port"`
	Token    string `cbor:"token"`
	CoreID   string `cbor:"core_id"`
	CoreName string `cbor:"core_name"`
}

func (*AuthSettings) PayloadType() string { return "AuthSettings" }

// ManualPairSettings starts pairing against a known host, optionally reusing
// a saved token.
type ManualPairSettings struct {
	Host     string  `cbor:"host"`
	Port     int     `cbor:"port"`
	Token    *string `cbor:"token,omitempty"`
	CoreID   *string `cbor:"core_id,omitempty"`
	CoreName *string `cbor:"core_name,omitempty"`
}

func (*ManualPairSettings) PayloadType() string { return "ManualPairSettings" }

// PairStatus reports pairing progress, with the credentials once paired.
type PairStatus struct {
	Status PairState     `cbor:"status"`
	Auth   *AuthSettings `cbor:"auth,omitempty"`
}

func (*PairStatus) PayloadType() string { return "PairStatus" }

// DiscoverStatus reports discovery progress, with the core's address once
// found.
type DiscoverStatus struct {
	Status DiscoverState `cbor:"status"`
	Host   *string       `cbor:"host,omitempty"`
	Port   *int          `cbor:"port,omitempty"`
}

func (*DiscoverStatus) PayloadType() string { return "DiscoverStatus" }

// CacheData is the worker's library snapshot, shipped whole to the skill so
// voice matching can run locally.
type CacheData struct {
	LastUpdated   *time.Time        `cbor:"last_updated,omitempty"`
	RadioStations []BrowseItem      `cbor:"radio_stations"`
	Genres        []BrowseItem      `cbor:"genres"`
	Playlists     []BrowseItem      `cbor:"playlists"`
	Zones         map[string]Zone   `cbor:"zones"`
	Outputs       map[string]Output `cbor:"outputs"`
}

func (*CacheData) PayloadType() string { return "CacheData" }

// MuteRequest mutes or unmutes an output.
type MuteRequest struct {
	OutputID string `cbor:"output_id"`
	Mute     bool   `cbor:"mute"`
}

func (*MuteRequest) PayloadType() string { return "MuteRequest" }

// VolumeRelativeChange nudges an output's volume by a percentage step.
type VolumeRelativeChange struct {
	OutputID      string `cbor:"output_id"`
	RelativeValue int    `cbor:"relative_value"`
}

func (*VolumeRelativeChange) PayloadType() string { return "VolumeRelativeChange" }

// VolumeAbsoluteChange sets an output's volume to a percentage.
type VolumeAbsoluteChange struct {
	OutputID      string `cbor:"output_id"`
	AbsoluteValue int    `cbor:"absolute_value"`
}

func (*VolumeAbsoluteChange) PayloadType() string { return "VolumeAbsoluteChange" }

// Shuffle toggles shuffle on a zone or output.
type Shuffle struct {
	ZoneOrOutputID string `cbor:"zone_or_output_id"`
	Shuffle        bool   `cbor:"shuffle"`
}

func (*Shuffle) PayloadType() string { return "Shuffle" }

// Repeat sets the repeat mode of a zone or output.
type Repeat struct {
	ZoneOrOutputID string       `cbor:"zone_or_output_id"`
	Repeat         RepeatOption `cbor:"repeat"`
}

func (*Repeat) PayloadType() string { return "Repeat" }

// PlaybackControl issues a transport control command.
type PlaybackControl struct {
	ZoneOrOutputID string        `cbor:"zone_or_output_id"`
	Control        ControlOption `cbor:"playback_control"`
}

func (*PlaybackControl) PayloadType() string { return "PlaybackControl" }

// PlayPath plays the item at a browse-hierarchy path.
type PlayPath struct {
	ZoneOrOutputID string   `cbor:"zone_or_output_id"`
	Path           []string `cbor:"path"`
	ReportError    bool     `cbor:"report_error"`
	Action         *string  `cbor:"action,omitempty"`
}

func (*PlayPath) PayloadType() string { return "PlayPath" }

// PlaySearch plays an item found by an earlier search, identified by its
// item key within a search session.
type PlaySearch struct {
	ZoneOrOutputID string  `cbor:"zone_or_output_id"`
	ItemKey        *string `cbor:"item_key,omitempty"`
	SessionKey     string  `cbor:"session_key"`
}

func (*PlaySearch) PayloadType() string { return "PlaySearch" }

// SearchType searches the library for items of one type.
type SearchType struct {
	ItemType ItemType `cbor:"item_type"`
	Query    string   `cbor:"query"`
}

func (*SearchType) PayloadType() string { return "SearchType" }

// SearchGeneric searches the library across all types within a search
// session.
type SearchGeneric struct {
	Query      string `cbor:"query"`
	SessionKey string `cbor:"session_key"`
}

func (*SearchGeneric) PayloadType() string { return "SearchGeneric" }

// SearchTypeResult carries scored search results.
type SearchTypeResult struct {
	Results []EnrichedBrowseItem `cbor:"results"`
}

func (*SearchTypeResult) PayloadType() string { return "SearchTypeResult" }

// NowPlayingRequest asks what a zone is playing.
type NowPlayingRequest struct {
	ZoneID string `cbor:"zone_id"`
}

func (*NowPlayingRequest) PayloadType() string { return "NowPlayingRequest" }

// NowPlayingReply answers a NowPlayingRequest.
type NowPlayingReply struct {
	NowPlaying NowPlaying `cbor:"np"`
}

func (*NowPlayingReply) PayloadType() string { return "NowPlayingReply" }

// GetImageRequest resolves an image key to a fetchable URL.
type GetImageRequest struct {
	ImageKey string `cbor:"image_key"`
}

func (*GetImageRequest) PayloadType() string { return "GetImageRequest" }

// GetImageReply answers a GetImageRequest.
type GetImageReply struct {
	URL *string `cbor:"url,omitempty"`
}

func (*GetImageReply) PayloadType() string { return "GetImageReply" }

// StateChanged is the event payload published whenever the session reports
// zone or output changes.
type StateChanged struct {
	Event          string   `cbor:"event"`
	NewZonesFound  bool     `cbor:"new_zones_found"`
	UpdatedZones   []Zone   `cbor:"updated_zones,omitempty"`
	UpdatedOutputs []Output `cbor:"updated_outputs,omitempty"`
}

func (*StateChanged) PayloadType() string { return "StateChanged" }

var registerOnce sync.Once

// RegisterPayloads adds every proxy payload type to the message registry.
// Both processes call it during startup, before opening any socket; calling
// it again is a no-op so the skill and worker halves can share a process in
// tests.
func RegisterPayloads() {
	registerOnce.Do(func() {
		message.Register(func() message.Payload { return &AuthSettings{} })
		message.Register(func() message.Payload { return &ManualPairSettings{} })
		message.Register(func() message.Payload { return &PairStatus{} })
		message.Register(func() message.Payload { return &DiscoverStatus{} })
		message.Register(func() message.Payload { return &CacheData{} })
		message.Register(func() message.Payload { return &MuteRequest{} })
		message.Register(func() message.Payload { return &VolumeRelativeChange{} })
		message.Register(func() message.Payload { return &VolumeAbsoluteChange{} })
		message.Register(func() message.Payload { return &Shuffle{} })
		message.Register(func() message.Payload { return &Repeat{} })
		message.Register(func() message.Payload { return &PlaybackControl{} })
		message.Register(func() message.Payload { return &PlayPath{} })
		message.Register(func() message.Payload { return &PlaySearch{} })
		message.Register(func() message.Payload { return &SearchType{} })
		message.Register(func() message.Payload { return &SearchGeneric{} })
		message.Register(func() message.Payload { return &SearchTypeResult{} })
		message.Register(func() message.Payload { return &NowPlayingRequest{} })
		message.Register(func() message.Payload { return &NowPlayingReply{} })
		message.Register(func() message.Payload { return &GetImageRequest{} })
		message.Register(func() message.Payload { return &GetImageReply{} })
		message.Register(func() message.Payload { return &StateChanged{} })
	})
}
