// Package stream pumps resumable engines against io.Reader and io.Writer.
//
// Decode reads into a bounded buffer, feeds the engine, keeps whatever the
// engine left unconsumed and reads again. The buffer grows only when the
// engine reports a deficit larger than the free space, up to MaxBufferSize.
// Encode fills one buffer at a time from the engine and writes it out.
//
// Both check their context before every read and between chunks, so a
// cancelled operation stops at the next I/O wait with a KindCanceled error.
package stream
