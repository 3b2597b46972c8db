// Package framecodec serializes Go values to a compact binary format and to
// JSON through resumable, non-recursive engines.
//
// Both engines are frame-stack machines. They encode into and decode from
// buffers of any size, suspend when a buffer runs out, report how many more
// bytes they need, and resume exactly where they stopped. Deeply nested
// documents never grow the goroutine stack and never need to be resident in
// memory at once.
//
// # Architecture Overview
//
//	framecodec/          Codec contract and typed helpers
//	├── binary/          Binary engine and codec
//	├── json/            JSON engine and codec
//	├── registry/        Type metadata: shapes, members, enums, type ids
//	├── stack/           Frame stack shared by the engines
//	├── stream/          io.Reader/io.Writer pumps with cancellation
//	├── metrics/         Prometheus collectors for stream traffic
//	├── errors/          Structured error types
//	└── cmd/framecodec/  Converter, payload inspector and stepper CLI
//
// # Quick Start
//
//	type User struct {
//	    ID   int    `codec:"id,1"`
//	    Name string `codec:"name,2"`
//	}
//
//	c := json.NewCodec(json.DefaultOptions())
//	data, err := c.Marshal(User{ID: 5, Name: "a"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	u, err := framecodec.Decode[User](c, data)
//
// Streams are pumped with a context that is checked at every read and
// between written chunks:
//
//	err := c.MarshalTo(ctx, conn, u)
//	u, err = framecodec.Read[User](ctx, c, conn)
//
// # Incremental Use
//
// The engines can be driven directly:
//
//	dec, _ := binary.NewDecoder(reflect.TypeFor[User](), binary.DefaultOptions())
//	for !dec.Done() {
//	    n, err := dec.Feed(buf)
//	    ...
//	    buf = append(buf[n:], more...) // keep the unconsumed tail
//	}
//
// # Polymorphism
//
// Values held in interface fields are written with a type tag. Register
// concrete types first:
//
//	registry.Register[Circle](registry.Default(), registry.FirstUserID, "circle")
//
// # Thread Safety
//
// Codecs and registries are safe for concurrent use. Encoders and decoders
// belong to a single operation and must not be shared.
package framecodec
