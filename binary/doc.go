// Package binary implements the compact binary wire format.
//
// Both directions are resumable. An Encoder writes into caller-sized buffers
// and keeps what did not fit; a Decoder consumes whatever prefix of its input
// it can and reports, through BytesNeeded, the minimum it needs before it can
// continue. Neither recurses: the path from the root to the current value is
// an explicit frame stack.
//
// # Wire Layout
//
// Every value is written as
//
//	[not-null] tag [type id] payload
//
// The not-null byte appears only for nullable slots (pointers, slices, maps,
// interfaces and []byte): 0x00 means null and nothing follows, 0x01 means a
// value follows. The tag packs the value's shape and wire type:
//
//	tag = shape<<4 | 0x08 (type id follows) | wire
//
// Shapes start at 1, so a tag is never 0x00 or 0x01 and a reader that does
// not know the declared type can still tell a null flag from a tag.
//
//	Wire       Payload
//	─────────────────────────────────────────────────
//	pairs      count, then key/value pairs
//	varint     signed LEB128
//	uvarint    unsigned LEB128
//	fixed32    4 bytes in Options.ByteOrder
//	fixed64    8 bytes in Options.ByteOrder
//	bytes      uvarint length, then raw bytes
//	members    (index value)*, terminated by index 0
//	sequence   uvarint count, then values
//
// Member indices come from the registry and are written as uvarints unless
// Options.IndexWidth selects a fixed width.
//
// # Unknown Members
//
// A member index the declared type does not know is skipped by parsing the
// self-describing value that follows and discarding it, so payloads written
// by newer versions of a type decode into older ones.
package binary
