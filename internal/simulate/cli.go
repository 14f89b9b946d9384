package simulate

import "os"

// ShowHelp prints usage information for the draft simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Live Draft Simulator
====================

Serves a generated auction draft in the provider results format, revealing
one pick per interval, so the engine can be rehearsed end to end.

Usage:
  go run ./cmd/draft-sim [options]

Options:
  -addr string       listen address (default ":9090")
  -league string     league id to answer for (default "sim")
  -key string        bearer token clients must send
  -teams int         number of teams (default 12)
  -budget int        budget per team (default 500)
  -roster int        roster spots per team (default 24)
  -min-bid int       minimum bid (default 1)
  -picks int         picks to generate, 0 for a full draft
  -seed uint         scenario seed (default 1)
  -interval duration delay between picks (default 2s)
  -flaky int         fail every n-th request with 503
  -pool string       write the player pool here (default "data/pool.json")
  -engine string     engine base url to verify against
  -help              show this help

Example:
  go run ./cmd/draft-sim -interval 500ms -engine http://localhost:9080
`)
}
