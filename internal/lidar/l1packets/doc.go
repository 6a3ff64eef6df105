// Package l1packets owns Layer 1 (Packets) of the lidar data model.
//
// Responsibilities: datagram ingestion and capture replay (network/) and
// decoding of VLP-16 payloads into timestamped firing sequences (parse/).
// This layer produces the records consumed by L2 (Sweeps).
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1packets
