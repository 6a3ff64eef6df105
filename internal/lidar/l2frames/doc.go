// Package l2frames owns Layer 2 (Sweeps) of the lidar data model.
//
// Responsibilities: cutting the stream of decoded firing sequences into
// sweeps (ScanAssembler), arranging a sweep into a ring × azimuth range
// image (GridBuilder), projecting a grid into a point cloud (Project) and
// handing completed sweeps to a single consumer goroutine
// (SweepDispatcher). Sweep-level statistics and cloud export live here too.
//
// Dependency rule: L2 may depend on L1 (l1packets/parse), never on the
// pipeline or transport packages.
package l2frames
