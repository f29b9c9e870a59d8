package proxy

// Session is the paired, stateful connection to a music-server core. The
// real implementation wraps the external server SDK and lives outside this
// module; the worker only drives it through this boundary.
type Session interface {
	// UpdateCache rebuilds the library snapshot from the core and returns it.
	UpdateCache() (CacheData, error)
	// Cache returns the current snapshot without touching the core.
	Cache() CacheData

	Mute(outputID string, mute bool) error
	ChangeVolumePercent(outputID string, relativeValue int) error
	SetVolumePercent(outputID string, absoluteValue int) error
	Shuffle(zoneOrOutputID string, shuffle bool) error
	Repeat(zoneOrOutputID string, repeat RepeatOption) error
	PlaybackControl(zoneOrOutputID string, control ControlOption) error
	PlayPath(zoneOrOutputID string, path []string, action *string) error
	PlaySearch(zoneOrOutputID string, itemKey *string, sessionKey string) error
	SearchType(itemType ItemType, query string) ([]EnrichedBrowseItem, error)
	NowPlaying(zoneID string) (NowPlaying, error)
	ImageURL(imageKey string) (*string, error)

	// Subscribe registers the listener for zone/output change events. The
	// worker uses it to fan state changes out to the skill.
	Subscribe(listener func(StateChanged))

	// Disconnect drops the connection to the core.
	Disconnect()
}

// Dialer produces Sessions: it runs core discovery and the pairing
// handshake. Like Session, the real implementation wraps the external SDK.
type Dialer interface {
	// StartDiscovery begins searching the local network for a core.
	StartDiscovery() error
	// DiscoveryStatus reports discovery progress; Host/Port are set once
	// Status is DiscoverDiscovered.
	DiscoveryStatus() DiscoverStatus

	// StartPairing begins the pairing handshake with a core.
	StartPairing(settings ManualPairSettings) error
	// PairingStatus reports pairing progress. Once Status is PairPaired the
	// returned Session is non-nil and ready for use.
	PairingStatus() (PairStatus, Session)
}
