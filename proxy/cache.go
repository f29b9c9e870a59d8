package proxy

// EmptyCache returns a cache snapshot with no data, the state before the
// first update completes.
func EmptyCache() CacheData {
	return CacheData{
		RadioStations: []BrowseItem{},
		Genres:        []BrowseItem{},
		Playlists:     []BrowseItem{},
		Zones:         map[string]Zone{},
		Outputs:       map[string]Output{},
	}
}

// ApplyState folds a state-change event into the snapshot, so the skill's
// local copy tracks zone and output changes between full cache refreshes.
func (c *CacheData) ApplyState(ev *StateChanged) {
	if c.Zones == nil {
		c.Zones = map[string]Zone{}
	}
	if c.Outputs == nil {
		c.Outputs = map[string]Output{}
	}
	for _, zone := range ev.UpdatedZones {
		c.Zones[zone.ZoneID] = zone
	}
	for _, output := range ev.UpdatedOutputs {
		c.Outputs[output.OutputID] = output
	}
}
