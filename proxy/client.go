package proxy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"playlink/client"
	"playlink/config"
	"playlink/message"
	"playlink/pubsub"
	"playlink/registry"
)

// updateCacheTimeout overrides the per-attempt timeout for full cache
// rebuilds, which walk the core's browse hierarchy and can take a while.
const updateCacheTimeout = 10 * time.Second

// Client is the skill-side handle on a worker. It wraps the request/reply
// channel with typed methods, and keeps a local cache snapshot current by
// folding published state changes into it.
type Client struct {
	rpc       *client.Client
	sub       *pubsub.Subscriber
	eventAddr string

	mu      sync.Mutex
	cache   CacheData
	onState func(*StateChanged)
}

// NewClient builds a client from the skill configuration. No connection is
// opened until the first call.
func NewClient(cfg *config.Skill) *Client {
	RegisterPayloads()

	c := &Client{
		sub:       pubsub.NewSubscriber(),
		eventAddr: cfg.EventAddr,
		cache:     EmptyCache(),
	}
	c.rpc = client.New(cfg.SockAddr,
		client.WithTimeout(cfg.DispatchTimeout),
		client.WithRetries(cfg.DispatchRetries),
		// The typed wrappers surface application errors as return values, so
		// the handler only needs to trace them.
		client.WithErrorHandler(func(req, reply *message.Envelope) {
			slog.Debug("worker reported an error", "topic", req.Topic, "msg_id", req.MsgID)
		}),
	)
	return c
}

// DiscoverWorker resolves the named worker through the registry and returns
// a client bound to its endpoints. cfg supplies the dispatch settings; its
// addresses are replaced by the discovered ones.
func DiscoverWorker(reg registry.Registry, cfg *config.Skill) (*Client, error) {
	instances, err := reg.Discover(cfg.WorkerName)
	if err != nil {
		return nil, fmt.Errorf("proxy: discover worker: %w", err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("proxy: no worker registered under %q", cfg.WorkerName)
	}
	bound := *cfg
	bound.SockAddr = instances[0].Addr
	bound.EventAddr = instances[0].EventAddr
	return NewClient(&bound), nil
}

// Close drops the event subscription and the request connection.
func (c *Client) Close() {
	c.sub.Unsubscribe()
	c.rpc.Disconnect()
}

// Discover asks the worker to start searching for a core.
func (c *Client) Discover() error {
	return dispatchEmpty(c, TopicDiscover, nil)
}

// DiscoverStatus reports the worker's discovery progress.
func (c *Client) DiscoverStatus() (*DiscoverStatus, error) {
	return dispatchAs[*DiscoverStatus](c, TopicDiscoverStatus, nil)
}

// Pair asks the worker to start pairing with the given core.
func (c *Client) Pair(settings ManualPairSettings) error {
	return dispatchEmpty(c, TopicPair, &settings)
}

// PairStatus reports the worker's pairing progress.
func (c *Client) PairStatus() (*PairStatus, error) {
	return dispatchAs[*PairStatus](c, TopicPairStatus, nil)
}

// Disconnect asks the worker to drop its core session. The client itself
// stays usable; see Close for local teardown.
func (c *Client) Disconnect() error {
	return dispatchEmpty(c, TopicDisconnect, nil)
}

// UpdateCache asks the worker to rebuild its library snapshot, then adopts
// the result as the local cache.
func (c *Client) UpdateCache() (CacheData, error) {
	cache, err := dispatchAs[*CacheData](c, TopicUpdateCache, nil, client.WithTimeout(updateCacheTimeout))
	if err != nil {
		return CacheData{}, err
	}
	c.setCache(*cache)
	return *cache, nil
}

// FetchCache retrieves the worker's current snapshot without forcing a
// rebuild, and adopts it locally.
func (c *Client) FetchCache() (CacheData, error) {
	cache, err := dispatchAs[*CacheData](c, TopicGetCache, nil)
	if err != nil {
		return CacheData{}, err
	}
	c.setCache(*cache)
	return *cache, nil
}

// Cache returns the local snapshot: the last fetched cache with all state
// changes received since folded in.
func (c *Client) Cache() CacheData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

func (c *Client) setCache(cache CacheData) {
	c.mu.Lock()
	c.cache = cache
	c.mu.Unlock()
}

// Mute mutes or unmutes an output.
func (c *Client) Mute(outputID string, mute bool) error {
	return dispatchEmpty(c, TopicMute, &MuteRequest{OutputID: outputID, Mute: mute})
}

// ChangeVolumePercent nudges an output's volume by a percentage step.
func (c *Client) ChangeVolumePercent(outputID string, relativeValue int) error {
	return dispatchEmpty(c, TopicChangeVolume, &VolumeRelativeChange{OutputID: outputID, RelativeValue: relativeValue})
}

// SetVolumePercent sets an output's volume to a percentage.
func (c *Client) SetVolumePercent(outputID string, absoluteValue int) error {
	return dispatchEmpty(c, TopicSetVolume, &VolumeAbsoluteChange{OutputID: outputID, AbsoluteValue: absoluteValue})
}

// Shuffle toggles shuffle on a zone or output.
func (c *Client) Shuffle(zoneOrOutputID string, shuffle bool) error {
	return dispatchEmpty(c, TopicShuffle, &Shuffle{ZoneOrOutputID: zoneOrOutputID, Shuffle: shuffle})
}

// Repeat sets the repeat mode of a zone or output.
func (c *Client) Repeat(zoneOrOutputID string, repeat RepeatOption) error {
	return dispatchEmpty(c, TopicRepeat, &Repeat{ZoneOrOutputID: zoneOrOutputID, Repeat: repeat})
}

// PlaybackControl issues a transport command to a zone or output.
func (c *Client) PlaybackControl(zoneOrOutputID string, control ControlOption) error {
	return dispatchEmpty(c, TopicPlaybackControl, &PlaybackControl{ZoneOrOutputID: zoneOrOutputID, Control: control})
}

// PlayPath plays the item at a browse-hierarchy path.
func (c *Client) PlayPath(zoneOrOutputID string, path []string, action *string) error {
	return dispatchEmpty(c, TopicPlayPath, &PlayPath{ZoneOrOutputID: zoneOrOutputID, Path: path, Action: action})
}

// PlaySearch plays an item found by an earlier search.
func (c *Client) PlaySearch(zoneOrOutputID string, itemKey *string, sessionKey string) error {
	return dispatchEmpty(c, TopicPlaySearch, &PlaySearch{ZoneOrOutputID: zoneOrOutputID, ItemKey: itemKey, SessionKey: sessionKey})
}

// SearchType searches the library for items of one type.
func (c *Client) SearchType(itemType ItemType, query string) ([]EnrichedBrowseItem, error) {
	result, err := dispatchAs[*SearchTypeResult](c, TopicSearchType, &SearchType{ItemType: itemType, Query: query})
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

// NowPlaying reports what a zone is currently playing.
func (c *Client) NowPlaying(zoneID string) (NowPlaying, error) {
	reply, err := dispatchAs[*NowPlayingReply](c, TopicNowPlaying, &NowPlayingRequest{ZoneID: zoneID})
	if err != nil {
		return NowPlaying{}, err
	}
	return reply.NowPlaying, nil
}

// ImageURL resolves an image key to a fetchable URL, nil when the worker has
// none.
func (c *Client) ImageURL(imageKey string) (*string, error) {
	reply, err := dispatchAs[*GetImageReply](c, TopicGetImage, &GetImageRequest{ImageKey: imageKey})
	if err != nil {
		return nil, err
	}
	return reply.URL, nil
}

// Subscribe starts listening on the worker's event channel. Every state
// change is folded into the local cache first, then handed to cb. A nil cb
// keeps the cache current without notifications. Subscribing again replaces
// the callback.
func (c *Client) Subscribe(cb func(*StateChanged)) {
	c.mu.Lock()
	c.onState = cb
	c.mu.Unlock()
	c.sub.Subscribe(c.eventAddr, c.handleEvent)
}

// Unsubscribe stops the event listener.
func (c *Client) Unsubscribe() {
	c.sub.Unsubscribe()
}

func (c *Client) handleEvent(env *message.Envelope) {
	ev, ok := env.Payload.(*StateChanged)
	if !ok {
		slog.Warn("ignoring unexpected event payload", "type", env.Payload.PayloadType(), "topic", env.Topic)
		return
	}
	c.mu.Lock()
	c.cache.ApplyState(ev)
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// dispatchAs performs a typed call: it dispatches and asserts the reply to
// T, converting error payloads into Go errors.
func dispatchAs[T message.Payload](c *Client, topic string, payload message.Payload, opts ...client.Option) (T, error) {
	var zero T
	reply, err := c.rpc.Dispatch(topic, payload, opts...)
	if err != nil {
		return zero, err
	}
	switch p := reply.(type) {
	case T:
		return p, nil
	case *message.UnhandledApplicationError:
		return zero, fmt.Errorf("proxy: %s failed: %s", topic, p.Exception)
	case *message.DeserializationError:
		return zero, fmt.Errorf("proxy: %s reply undecodable: %s", topic, p.Message)
	default:
		return zero, fmt.Errorf("proxy: %s returned unexpected payload %s", topic, reply.PayloadType())
	}
}

// dispatchEmpty performs a call whose only interesting reply is an error.
func dispatchEmpty(c *Client, topic string, payload message.Payload, opts ...client.Option) error {
	_, err := dispatchAs[*message.Empty](c, topic, payload, opts...)
	return err
}
