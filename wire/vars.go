package wire

import "expvar"

// Counters published at /portal/debug/vars, mirroring the teacher's
// totalRecv/totalDroppedPackets style counters in dht.go and
// remoteNode/krpc.go.
var (
	totalRecv          = expvar.NewInt("portalTotalRecv")
	totalRejectedSigs  = expvar.NewInt("portalTotalRejectedSignatures")
	totalOversizedRecv = expvar.NewInt("portalTotalOversizedDatagrams")
)
