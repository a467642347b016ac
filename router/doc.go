// Package router commits compressed tables to the multicast router and
// cleans up after them.
//
// Key Components:
//
//   - Hardware: the two router primitives the compressor needs, allocate a
//     block of entries for an application and write one entry
//   - MCRouter: in-memory model of the 1024-entry TCAM, first-fit block
//     allocation per application id, entry 0 owned by the monitor
//   - Load: allocate, tag every route with the application id, write
//   - RemoveMergedBitfields: flag every filter folded into the committed
//     table as merged, in memory and in its core's SDRAM region
//
// Threading Model:
//
//   - The searcher is the only caller; nothing here takes a lock
package router
