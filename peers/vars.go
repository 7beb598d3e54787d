package peers

import "expvar"

// tableSize is a gauge of the current peer count, set on every Add,
// mirroring the teacher's ReachableNodes gauge pattern in
// routingTable/routing_table.go.
var tableSize = expvar.NewInt("portalPeerTableSize")
