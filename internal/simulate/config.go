package simulate

import "time"

// Config holds configuration for a draft rehearsal.
type Config struct {
	Addr       string        // listen address of the fake provider
	LeagueID   string        // league id the provider answers for
	APIKey     string        // bearer token required from clients, empty for none
	Teams      int           // number of teams
	Budget     int           // budget per team
	RosterSize int           // roster spots per team
	MinBid     int           // minimum bid
	Picks      int           // picks to generate, 0 for a full draft
	Seed       uint64        // scenario seed
	Interval   time.Duration // delay between revealed picks
	FlakyEvery int           // fail every n-th request, 0 to disable
	PoolFile   string        // where to write the player pool
	EngineURL  string        // engine API to verify against, empty to skip
	Timeout    time.Duration // HTTP timeout for engine checks
}
