package redirect

import "expvar"

// totalRules is a monotonically increasing counter of rules added to the
// table, mirroring the teacher's totalNodes/totalKilledNodes expvar
// counters in routingTable/routing_table.go.
var totalRules = expvar.NewInt("portalTotalRules")

// tableSize is a gauge of the current rule count, set on every Upsert and
// Prune, mirroring the teacher's ReachableNodes gauge pattern
// (routingTable/routing_table.go's Length() snapshotted into an expvar).
var tableSize = expvar.NewInt("portalRedirectTableSize")
