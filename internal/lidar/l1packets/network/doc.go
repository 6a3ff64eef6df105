// Package network receives raw sensor datagrams, either live over UDP or
// replayed from a capture file, and hands each payload with its receive
// time to a PacketHandler. It also mirrors datagrams to a second address.
package network
