// Package swarm holds the pieces of the peer-to-peer engine the coordinator
// drives without implementing: descriptor building, the tracker and seed
// services, and the command lines that run the swarm client on hosts.
//
// Descriptors are single-file bencoded metainfo announcing to
// http://origin:port/announce. The tracker and the client are external
// executables shipped in the runtime bundle; CommandTracker and CommandSeeder
// run them in the foreground, so callers wanting them in the background start
// them in a goroutine.
package swarm
