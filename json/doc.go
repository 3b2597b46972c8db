// Package json implements the text format: standard JSON read and written
// by a resumable frame-stack machine.
//
// The Decoder accepts input in chunks of any size, including one byte at a
// time. Tokens that straddle a chunk boundary accumulate in their frame, so
// a suspended Decoder only needs the bytes it has not consumed yet. Values
// are coerced into the declared Go type as they complete: a JSON string may
// fill a number, time.Time, time.Duration, uuid.UUID, []byte or enum slot,
// and a JSON number may fill a string, enum or duration slot.
//
// Polymorphic slots carry a type key, "$type" by default:
//
//	{"$type":"circle","R":2}
//	{"$type":"celsius","$value":21.5}
//
// With Options.Nameless a slice root is read and written as a bare sequence
// of values, one per line, without brackets. Such a document ends where the
// input ends, so callers must call Finish.
package json
