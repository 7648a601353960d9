// Package protocol owns the error kinds and status ABI shared by the wire
// layers.
//
// Ownership boundary:
// - schema: type documents and descriptors
// - codec: value encoding bound to descriptors
// - tlv: per-field records inside one logical message
// - frame: datagram header, chunk and EOF flags
package protocol
