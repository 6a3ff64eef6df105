// Package pipeline is the composition root of the decoder: it feeds packet
// payloads through the parser and the scan assembler on the ingest
// goroutine, and builds grids and clouds for completed sweeps on a single
// worker that fans them out to SweepSinks.
//
// Layer packages (l1packets, l2frames) never import pipeline.
package pipeline
