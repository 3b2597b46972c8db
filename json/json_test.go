package json

import (
	"bytes"
	"context"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
)

type record struct {
	Id   int32
	Name string
}

type recordV2 struct {
	Id    int32
	Name  string
	Extra *extra
	Tags  map[string]any
	Notes []string
}

type extra struct {
	Flag  bool      `codec:"flag"`
	Items []float64 `codec:"items"`
	Deep  *extra    `codec:"deep"`
}

type level int

type celsius float64

type scalars struct {
	B    bool
	I    int
	I8   int8
	I16  int16
	I64  int64
	U    uint
	U8   uint8
	U32  uint32
	U64  uint64
	F32  float32
	F64  float64
	S    string
	Raw  []byte
	D    time.Duration
	ID   uuid.UUID
	Lvl  level
	Lvls []level
}

type containers struct {
	Ints   []int
	Empty  []int
	Nil    []int
	Array  [3]string
	Map    map[string]int
	Nested map[string][]record
	Ptr    *record
	NilPtr *record
	PtrPtr **int
	Matrix [][]int8
}

type shape interface{ Area() float64 }

type circle struct {
	R float64 `codec:"r"`
}

func (c circle) Area() float64 { return 3 * c.R * c.R }

type square struct {
	Side float64 `codec:"side"`
}

func (s *square) Area() float64 { return s.Side * s.Side }

type triangle struct{}

func (triangle) Area() float64 { return 0 }

type drawing struct {
	Title  string  `codec:"title"`
	Shapes []shape `codec:"shapes"`
	Any    any     `codec:"any"`
	Main   shape   `codec:"main"`
}

func testOptions(t *testing.T) Options {
	t.Helper()
	reg := registry.New()
	if err := registry.Enum[level](reg, "low", "mid", "high"); err != nil {
		t.Fatalf("Enum: %v", err)
	}
	if err := registry.Register[circle](reg, 40, "circle"); err != nil {
		t.Fatalf("Register circle: %v", err)
	}
	if err := registry.Register[square](reg, 41, "square"); err != nil {
		t.Fatalf("Register square: %v", err)
	}
	if err := registry.Register[record](reg, 42, "record"); err != nil {
		t.Fatalf("Register record: %v", err)
	}
	if err := registry.Register[celsius](reg, 43, "celsius"); err != nil {
		t.Fatalf("Register celsius: %v", err)
	}
	opts := DefaultOptions()
	opts.Registry = reg
	return opts
}

func marshal(t *testing.T, v any, opts Options) []byte {
	t.Helper()
	data, err := NewCodec(opts).Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

// feedChunks feeds data in chunks of size, keeping the unconsumed tail the
// way a caller must.
func feedChunks(t *testing.T, dec *Decoder, data []byte, size int) {
	t.Helper()
	var pending []byte
	for off := 0; off < len(data); off += size {
		pending = append(pending, data[off:min(off+size, len(data))]...)
		n, err := dec.Feed(pending)
		if err != nil {
			t.Fatalf("Feed at %d: %v", off, err)
		}
		pending = pending[n:]
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("%d bytes left unconsumed", len(pending))
	}
}

func TestCompactLayout(t *testing.T) {
	got := string(marshal(t, record{Id: 5, Name: "a"}, DefaultOptions()))
	if want := `{"Id":5,"Name":"a"}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestRecordOneCharAtATime(t *testing.T) {
	docs := []string{
		`{"Id":5,"Name":"a"}`,
		`{"Id":5,"Extra":true,"Name":"a"}`,
		" {\n\t\"Name\" : \"a\" ,\r\n \"Id\" : 5 }",
		`{"id":5,"name":"a"}`,
	}
	for _, doc := range docs {
		dec, err := NewDecoder(reflect.TypeFor[record](), DefaultOptions())
		if err != nil {
			t.Fatalf("NewDecoder: %v", err)
		}
		feedChunks(t, dec, []byte(doc), 1)

		got := dec.Value().Interface().(record)
		if got != (record{Id: 5, Name: "a"}) {
			t.Errorf("%s: decoded %+v, want {Id:5 Name:a}", doc, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	seven := 7
	ptr := &seven

	tests := []struct {
		name string
		v    any
	}{
		{"record", record{Id: -3, Name: "héllo \"quoted\" \\ \t\n 😀"}},
		{"scalars", scalars{
			B: true, I: -1 << 40, I8: -128, I16: 300, I64: 1<<63 - 1,
			U: 1 << 40, U8: 255, U32: 1 << 31, U64: 1<<64 - 1,
			F32: 1.5, F64: -2.25e100, S: "text", Raw: []byte{0, 1, 2},
			D: 90 * time.Second, ID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
			Lvl: 2, Lvls: []level{0, 1, 2},
		}},
		{"zero scalars", scalars{}},
		{"containers", containers{
			Ints:   []int{1, -2, 3},
			Empty:  []int{},
			Array:  [3]string{"a", "", "c"},
			Map:    map[string]int{"x": 1, "y": 2},
			Nested: map[string][]record{"k": {{Id: 1}, {Id: 2, Name: "b"}}},
			Ptr:    &record{Id: 9},
			PtrPtr: &ptr,
			Matrix: [][]int8{{1, 2}, nil, {}},
		}},
		{"recursive", extra{Flag: true, Items: []float64{1, 2}, Deep: &extra{Deep: &extra{Flag: true}}}},
		{"polymorphic", drawing{
			Title:  "d",
			Shapes: []shape{circle{R: 1}, &square{Side: 2}, nil},
			Any:    record{Id: 4},
			Main:   circle{R: 3},
		}},
		{"tagged scalar", drawing{Any: celsius(21.5)}},
		{"string", "just a string"},
		{"number", 42},
		{"slice root", []record{{Id: 1}, {Id: 2}}},
		{"map root", map[string]float32{"pi": 3.14}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			data := marshal(t, tt.v, opts)

			for _, size := range []int{1, 2, 3, 7, len(data)} {
				dec, err := NewDecoder(reflect.TypeOf(tt.v), opts)
				if err != nil {
					t.Fatalf("NewDecoder: %v", err)
				}
				feedChunks(t, dec, data, size)
				if got := dec.Value().Interface(); !reflect.DeepEqual(got, tt.v) {
					t.Fatalf("chunk %d: got %#v, want %#v\n%s", size, got, tt.v, data)
				}
			}
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	type event struct {
		At    time.Time
		Local time.Time
	}
	in := event{
		At:    time.Date(2024, 2, 29, 12, 30, 0, 123456789, time.UTC),
		Local: time.Date(2001, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600)),
	}
	c := NewCodec(DefaultOptions())
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"2024-02-29T12:30:00.123456789Z"`)) {
		t.Errorf("time not in RFC 3339: %s", data)
	}
	var out event
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !out.At.Equal(in.At) || !out.Local.Equal(in.Local) {
		t.Errorf("got %v / %v, want %v / %v", out.At, out.Local, in.At, in.Local)
	}
}

func TestEncoderChunkInvariance(t *testing.T) {
	opts := testOptions(t)
	opts.Indent = "  "
	v := recordV2{Id: 1, Name: "n", Extra: &extra{Items: []float64{1}}, Tags: map[string]any{"a": "b", "c": circle{R: 1}}, Notes: []string{"x"}}
	want := marshal(t, v, opts)

	for size := 1; size <= len(want); size++ {
		enc, err := NewEncoder(v, opts)
		if err != nil {
			t.Fatalf("NewEncoder: %v", err)
		}
		var got []byte
		buf := make([]byte, size)
		for !enc.Done() {
			n, err := enc.Encode(buf)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got = append(got, buf[:n]...)
			if !enc.Done() && enc.BytesNeeded() < 1 {
				t.Fatalf("size %d: BytesNeeded = %d while incomplete", size, enc.BytesNeeded())
			}
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("size %d: output differs:\n%s\n%s", size, got, want)
		}
	}
}

func TestIdempotentSuspension(t *testing.T) {
	data := []byte(`{"Id":300,"Name":"long enough name","Extra":{"flag":true,"items":[1.25,-3]},"Notes":null}`)

	for k := 0; k < len(data); k++ {
		dec, err := NewDecoder(reflect.TypeFor[recordV2](), DefaultOptions())
		if err != nil {
			t.Fatalf("NewDecoder: %v", err)
		}
		n, err := dec.Feed(data[:k])
		if err != nil {
			t.Fatalf("prefix %d: %v", k, err)
		}
		need, depth, mode := dec.BytesNeeded(), dec.Depth(), dec.Mode()
		if need < 1 {
			t.Fatalf("prefix %d: BytesNeeded = %d while suspended", k, need)
		}

		n2, err := dec.Feed(data[n:k])
		if err != nil {
			t.Fatalf("prefix %d refeed: %v", k, err)
		}
		if n2 != 0 || dec.BytesNeeded() != need || dec.Depth() != depth || dec.Mode() != mode {
			t.Fatalf("prefix %d: refeed consumed %d, need %d->%d, depth %d->%d, mode %s->%s",
				k, n2, need, dec.BytesNeeded(), depth, dec.Depth(), mode, dec.Mode())
		}
	}
}

func TestDepthBounded(t *testing.T) {
	chain := &extra{}
	for i := 0; i < 20; i++ {
		chain = &extra{Deep: chain}
	}
	data := marshal(t, chain, DefaultOptions())

	dec, err := NewDecoder(reflect.TypeFor[extra](), DefaultOptions())
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	maxDepth := 0
	for _, b := range data {
		if _, err := dec.Feed([]byte{b}); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		maxDepth = max(maxDepth, dec.Depth())
	}
	if !dec.Done() {
		t.Fatal("decode incomplete")
	}
	// 21 nested objects plus one key or scalar below the deepest.
	if maxDepth > 22 {
		t.Errorf("max depth %d exceeds nesting", maxDepth)
	}

	limited := DefaultOptions()
	limited.MaxDepth = 10
	dec, _ = NewDecoder(reflect.TypeFor[extra](), limited)
	if _, err := dec.Feed(data); !errors.IsKind(err, errors.KindOverflow) {
		t.Errorf("err = %v, want overflow", err)
	}
	if _, err := NewCodec(limited).Marshal(chain); !errors.IsKind(err, errors.KindOverflow) {
		t.Errorf("encode err = %v, want overflow", err)
	}
}

func TestUnknownMemberSkipped(t *testing.T) {
	opts := testOptions(t)
	v2 := recordV2{
		Id:    5,
		Name:  "a",
		Extra: &extra{Flag: true, Items: []float64{1, 2}, Deep: &extra{}},
		Tags:  map[string]any{"n": 1.5, "r": record{Id: 2}, "nil": nil, "s": "x\"}y"},
		Notes: []string{"one", "two"},
	}
	data := marshal(t, v2, opts)

	for _, size := range []int{1, 5, len(data)} {
		dec, err := NewDecoder(reflect.TypeFor[record](), opts)
		if err != nil {
			t.Fatalf("NewDecoder: %v", err)
		}
		feedChunks(t, dec, data, size)
		got := dec.Value().Interface().(record)
		if got != (record{Id: 5, Name: "a"}) {
			t.Errorf("chunk %d: got %+v", size, got)
		}
	}
}

func TestPolymorphic(t *testing.T) {
	opts := testOptions(t)

	data := marshal(t, drawing{Main: circle{R: 2}, Any: celsius(-4)}, opts)
	for _, want := range []string{`"main":{"$type":"circle","r":2}`, `"any":{"$type":"celsius","$value":-4}`} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("%s does not contain %s", data, want)
		}
	}

	var out drawing
	doc := `{"main": {"$type": "square", "side": 3}, "shapes": [{"$type":"circle"}]}`
	if err := NewCodec(opts).UnmarshalString(doc, &out); err != nil {
		t.Fatalf("UnmarshalString: %v", err)
	}
	if sq, ok := out.Main.(*square); !ok || sq.Side != 3 {
		t.Errorf("Main = %#v, want *square", out.Main)
	}
	if len(out.Shapes) != 1 || out.Shapes[0] != (circle{}) {
		t.Errorf("Shapes = %#v", out.Shapes)
	}

	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"untagged", `{"main":{"r":1}}`, errors.KindUnknownType},
		{"empty object", `{"main":{}}`, errors.KindUnknownType},
		{"unregistered", `{"main":{"$type":"hexagon"}}`, errors.KindUnknownType},
		{"not implementing", `{"main":{"$type":"record"}}`, errors.KindTypeMismatch},
		{"scalar", `{"main":1}`, errors.KindTypeMismatch},
		{"wrong value key", `{"any":{"$type":"celsius","value":1}}`, errors.KindUnknownMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d drawing
			if err := NewCodec(opts).UnmarshalString(tt.doc, &d); !errors.IsKind(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestDynamicAny(t *testing.T) {
	opts := testOptions(t)
	in := map[string]any{
		"f":    1.5,
		"list": []any{"x", true, nil},
		"rec":  record{Id: 3},
	}
	data := marshal(t, in, opts)

	var out any
	if err := NewCodec(opts).Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("got %#v, want %#v", out, in)
	}

	// Objects without a type key come back as maps.
	data = marshal(t, record{Id: 5, Name: "a"}, opts)
	out = nil
	if err := NewCodec(opts).Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal record into any: %v", err)
	}
	want := map[string]any{"Id": 5.0, "Name": "a"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %#v, want %#v", out, want)
	}

	out = nil
	if err := NewCodec(opts).UnmarshalString(`{}`, &out); err != nil || !reflect.DeepEqual(out, map[string]any{}) {
		t.Errorf("empty object = %#v, %v", out, err)
	}
}

func TestTypeTags(t *testing.T) {
	opts := testOptions(t)
	opts.TypeTags = TypeTagsAlways
	data := marshal(t, record{Id: 5, Name: "a"}, opts)
	if want := `{"$type":"record","Id":5,"Name":"a"}`; string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}

	var typed record
	if err := NewCodec(opts).Unmarshal(data, &typed); err != nil || typed.Id != 5 {
		t.Fatalf("typed decode = %+v, %v", typed, err)
	}
	var dynamic any
	if err := NewCodec(opts).Unmarshal(data, &dynamic); err != nil {
		t.Fatalf("dynamic decode: %v", err)
	}
	if got, ok := dynamic.(record); !ok || got.Name != "a" {
		t.Errorf("dynamic = %#v, want record", dynamic)
	}

	opts.TypeTags = TypeTagsNever
	data = marshal(t, drawing{Main: circle{R: 1}}, opts)
	if bytes.Contains(data, []byte("$type")) {
		t.Errorf("TypeTagsNever wrote a tag: %s", data)
	}
}

type readings []celsius

type station struct {
	Temp  celsius
	Lvl   level
	Log   readings
	Lvls  []level
	Rec   record
	Shape shape
}

func TestTypeTagsAlwaysRoundTrip(t *testing.T) {
	opts := testOptions(t)
	opts.TypeTags = TypeTagsAlways
	if err := registry.Register[level](opts.Registry, 44, "level"); err != nil {
		t.Fatalf("Register level: %v", err)
	}
	if err := registry.Register[readings](opts.Registry, 45, "readings"); err != nil {
		t.Fatalf("Register readings: %v", err)
	}

	in := station{
		Temp:  21.5,
		Lvl:   2,
		Log:   readings{-4, 2.5},
		Lvls:  []level{0, 1},
		Rec:   record{Id: 1, Name: "a"},
		Shape: circle{R: 2},
	}
	data := marshal(t, in, opts)
	for _, want := range []string{
		`"Temp":21.5`,
		`"Lvl":"high"`,
		`"Log":[-4,2.5]`,
		`"Lvls":["low","mid"]`,
		`"Rec":{"$type":"record","Id":1,"Name":"a"}`,
		`"Shape":{"$type":"circle","r":2}`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Marshal = %s, missing %s", data, want)
		}
	}
	if bytes.Contains(data, []byte("$value")) {
		t.Errorf("declared members were wrapped: %s", data)
	}

	for _, size := range []int{1, 3, len(data)} {
		dec, err := NewDecoder(reflect.TypeFor[station](), opts)
		if err != nil {
			t.Fatalf("NewDecoder: %v", err)
		}
		feedChunks(t, dec, data, size)
		if got := dec.Value().Interface(); !reflect.DeepEqual(got, in) {
			t.Errorf("chunk %d: got %#v, want %#v", size, got, in)
		}
	}

	// interface slots keep the wrapper
	data = marshal(t, drawing{Any: readings{1.5}}, opts)
	if !bytes.Contains(data, []byte(`"any":{"$type":"readings","$value":[1.5]}`)) {
		t.Errorf("Marshal = %s, want wrapped readings", data)
	}
	var back drawing
	if err := NewCodec(opts).Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got, ok := back.Any.(readings); !ok || len(got) != 1 || got[0] != 1.5 {
		t.Errorf("Any = %#v, want readings{1.5}", back.Any)
	}
}

func TestNameless(t *testing.T) {
	opts := testOptions(t)
	opts.Nameless = true

	in := []record{{Id: 1}, {Id: 2, Name: "b"}}
	data := marshal(t, in, opts)
	if want := "{\"Id\":1,\"Name\":\"\"}\n{\"Id\":2,\"Name\":\"b\"}\n"; string(data) != want {
		t.Fatalf("Marshal = %q, want %q", data, want)
	}
	for _, size := range []int{1, 4, len(data)} {
		dec, err := NewDecoder(reflect.TypeFor[[]record](), opts)
		if err != nil {
			t.Fatalf("NewDecoder: %v", err)
		}
		if dec.Mode() != "array-nameless" {
			t.Fatalf("Mode = %s", dec.Mode())
		}
		feedChunks(t, dec, data, size)
		if got := dec.Value().Interface(); !reflect.DeepEqual(got, in) {
			t.Errorf("chunk %d: got %#v", size, got)
		}
	}

	var ints []int
	if err := NewCodec(opts).UnmarshalString("1 2,3\n4", &ints); err != nil {
		t.Fatalf("UnmarshalString: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{1, 2, 3, 4}) {
		t.Errorf("ints = %v", ints)
	}
	for _, in := range []string{"1,,2", "1,2,", "1,2, \n", ","} {
		if err := NewCodec(opts).UnmarshalString(in, &ints); !errors.IsKind(err, errors.KindSyntax) {
			t.Errorf("%q err = %v, want syntax", in, err)
		}
	}
	if err := NewCodec(opts).UnmarshalString("1,2,", &ints); err == nil || err.(*errors.Error).Offset != 4 {
		t.Errorf("trailing comma err = %v, want offset 4", err)
	}

	ints = nil
	if err := NewCodec(opts).UnmarshalString("", &ints); err != nil || ints == nil || len(ints) != 0 {
		t.Errorf("empty sequence = %#v, %v", ints, err)
	}
}

func TestIndent(t *testing.T) {
	type doc struct {
		L []int
		E []int
		M map[string]bool
	}
	opts := DefaultOptions()
	opts.Indent = "  "
	got := string(marshal(t, doc{L: []int{1, 2}, E: []int{}, M: map[string]bool{"b": false, "a": true}}, opts))
	want := `{
  "L": [
    1,
    2
  ],
  "E": [],
  "M": {
    "a": true,
    "b": false
  }
}`
	if got != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", got, want)
	}

	var out doc
	if err := NewCodec(opts).UnmarshalString(got, &out); err != nil || len(out.L) != 2 || !out.M["a"] {
		t.Errorf("decode indented = %+v, %v", out, err)
	}
}

func TestEnumEncodings(t *testing.T) {
	type holder struct {
		L level `codec:"l"`
	}
	opts := testOptions(t)
	if got := string(marshal(t, holder{L: 2}, opts)); got != `{"l":"high"}` {
		t.Errorf("by name = %s", got)
	}
	ordinal := opts
	ordinal.EnumAsName = false
	if got := string(marshal(t, holder{L: 2}, ordinal)); got != `{"l":2}` {
		t.Errorf("by ordinal = %s", got)
	}

	for _, doc := range []string{`{"l":"high"}`, `{"l":"HIGH"}`, `{"l":2}`, `{"l":"2"}`} {
		var out holder
		if err := NewCodec(opts).UnmarshalString(doc, &out); err != nil || out.L != 2 {
			t.Errorf("%s = %+v, %v", doc, out, err)
		}
	}
	for _, doc := range []string{`{"l":"nope"}`, `{"l":9}`} {
		var out holder
		if err := NewCodec(opts).UnmarshalString(doc, &out); !errors.IsKind(err, errors.KindInvalidEnum) {
			t.Errorf("%s err = %v, want invalid enum", doc, err)
		}
	}
	if _, err := NewCodec(opts).Marshal(holder{L: 9}); !errors.IsKind(err, errors.KindInvalidEnum) {
		t.Errorf("err = %v, want invalid enum", err)
	}
}

func TestCoercions(t *testing.T) {
	type coerced struct {
		N   int
		U   uint8
		F   float64
		B   bool
		S   string
		T   string
		D   time.Duration
		Dn  time.Duration
		ID  uuid.UUID
		At  time.Time
		Raw []byte
	}
	doc := `{"N":"42","U":"7","F":"2.5","B":"true","S":17,"T":false,"D":"1m","Dn":1000,
		"ID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","At":"2024-01-02T03:04:05Z","Raw":"AQI="}`

	var out coerced
	if err := NewCodec(DefaultOptions()).UnmarshalString(doc, &out); err != nil {
		t.Fatalf("UnmarshalString: %v", err)
	}
	want := coerced{
		N: 42, U: 7, F: 2.5, B: true, S: "17", T: "false",
		D: time.Minute, Dn: time.Microsecond,
		ID:  uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		At:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Raw: []byte{1, 2},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %+v, want %+v", out, want)
	}

	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"bad int text", `{"N":"x"}`, errors.KindTypeCoercion},
		{"fraction into int", `{"N":1.5}`, errors.KindTypeCoercion},
		{"out of range", `{"U":300}`, errors.KindTypeCoercion},
		{"number into bool", `{"B":1}`, errors.KindTypeCoercion},
		{"bool into int", `{"N":true}`, errors.KindTypeCoercion},
		{"bad duration", `{"D":"soon"}`, errors.KindTypeCoercion},
		{"bad uuid", `{"ID":"nope"}`, errors.KindTypeCoercion},
		{"bad time", `{"At":"yesterday"}`, errors.KindTypeCoercion},
		{"bad base64", `{"Raw":"!!"}`, errors.KindTypeCoercion},
		{"object into int", `{"N":{}}`, errors.KindTypeMismatch},
		{"array into string", `{"S":[1]}`, errors.KindTypeMismatch},
		{"string into object", `"x"`, errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c coerced
			if err := NewCodec(DefaultOptions()).UnmarshalString(tt.doc, &c); !errors.IsKind(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestStrictNull(t *testing.T) {
	doc := `{"Id":null,"Name":"a"}`

	out := record{Id: 9}
	if err := NewCodec(DefaultOptions()).UnmarshalString(doc, &out); err != nil {
		t.Fatalf("lenient: %v", err)
	}
	if out != (record{Name: "a"}) {
		t.Errorf("lenient = %+v, want zero Id", out)
	}

	strict := DefaultOptions()
	strict.StrictNull = true
	err := NewCodec(strict).UnmarshalString(doc, &out)
	if !errors.IsKind(err, errors.KindTypeCoercion) {
		t.Fatalf("strict err = %v, want coercion", err)
	}

	var v2 recordV2
	if err := NewCodec(strict).UnmarshalString(`{"Extra":null,"Notes":null}`, &v2); err != nil {
		t.Errorf("null into nullable members: %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	small := DefaultOptions()
	small.MaxStringSize = 4

	tests := []struct {
		name   string
		doc    string
		into   any
		opts   Options
		kind   errors.Kind
		offset int
	}{
		{"trailing comma in object", `{"Id":5,}`, new(record), DefaultOptions(), errors.KindSyntax, 8},
		{"trailing comma in array", `[1,2,]`, new([]int), DefaultOptions(), errors.KindSyntax, 5},
		{"missing comma", `{"Id":5 "Name":"a"}`, new(record), DefaultOptions(), errors.KindSyntax, 8},
		{"missing colon", `{"Id" 5}`, new(record), DefaultOptions(), errors.KindSyntax, 6},
		{"bad value", `@`, new(record), DefaultOptions(), errors.KindSyntax, 0},
		{"bad literal", `{"Id":tru}`, new(record), DefaultOptions(), errors.KindSyntax, 6},
		{"leading zero", `{"Id":01}`, new(record), DefaultOptions(), errors.KindSyntax, 6},
		{"control character", "\"a\nb\"", new(string), DefaultOptions(), errors.KindSyntax, 2},
		{"trailing data", `{"Id":1} x`, new(record), DefaultOptions(), errors.KindSyntax, 9},
		{"unterminated string", `"abc`, new(string), DefaultOptions(), errors.KindPrematureEnd, -1},
		{"unterminated object", `{"Id":5`, new(record), DefaultOptions(), errors.KindPrematureEnd, -1},
		{"truncated literal", `tru`, new(bool), DefaultOptions(), errors.KindPrematureEnd, -1},
		{"truncated number", `-`, new(int), DefaultOptions(), errors.KindPrematureEnd, -1},
		{"empty", ``, new(record), DefaultOptions(), errors.KindPrematureEnd, -1},
		{"array too long", `["a","b","c"]`, new([2]string), DefaultOptions(), errors.KindInvalidData, -1},
		{"string too long", `"hello"`, new(string), small, errors.KindOverflow, -1},
		{"invalid utf8", "\"\xff\"", new(string), DefaultOptions(), errors.KindInvalidUTF8, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCodec(tt.opts).Unmarshal([]byte(tt.doc), tt.into)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if tt.offset >= 0 {
				e := err.(*errors.Error)
				if e.Offset != tt.offset {
					t.Errorf("offset = %d, want %d", e.Offset, tt.offset)
				}
			}
		})
	}
}

func TestErrorPath(t *testing.T) {
	err := NewCodec(DefaultOptions()).UnmarshalString(`{"Notes":["a",7,{}]}`, new(recordV2))
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("err = %T, want *errors.Error", err)
	}
	if e.Kind != errors.KindTypeMismatch || !reflect.DeepEqual(e.Path, []string{"Notes", "[2]"}) {
		t.Errorf("kind %s path %v, want type mismatch at [Notes [2]]", e.Kind, e.Path)
	}
}

func TestDecoderStaysFailed(t *testing.T) {
	dec, _ := NewDecoder(reflect.TypeFor[record](), DefaultOptions())
	_, first := dec.Feed([]byte("@"))
	if first == nil {
		t.Fatal("expected error")
	}
	if _, err := dec.Feed([]byte(`{"Id":1}`)); err != first {
		t.Errorf("second Feed = %v, want first error", err)
	}
	if err := dec.Finish(); err != first {
		t.Errorf("Finish = %v, want first error", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	type fn struct{ F func() }
	type bad struct{ S string }
	type float struct{ F float64 }

	tests := []struct {
		name string
		v    any
		kind errors.Kind
	}{
		{"nil pointer", (*record)(nil), errors.KindNilPointer},
		{"unsupported", fn{}, errors.KindUnsupported},
		{"invalid utf8", bad{S: "\xff"}, errors.KindInvalidUTF8},
		{"unregistered polymorphic", drawing{Main: triangle{}}, errors.KindUnsupported},
		{"nan", float{F: math.NaN()}, errors.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(testOptions(t)).Marshal(tt.v)
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestUTF16(t *testing.T) {
	in := record{Id: 5, Name: "é"}
	utf8Text := marshal(t, in, DefaultOptions())

	for _, enc := range []Encoding{UTF16LE, UTF16BE} {
		t.Run(enc.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Encoding = enc
			c := NewCodec(opts)

			data, err := c.Marshal(in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if len(data) != 2*len([]rune(string(utf8Text))) {
				t.Fatalf("len = %d, want two bytes per character", len(data))
			}
			first := data[0]
			if enc == UTF16BE {
				first = data[1]
			}
			if first != '{' {
				t.Errorf("data starts % x", data[:2])
			}

			var out record
			if err := c.Unmarshal(data, &out); err != nil || out != in {
				t.Fatalf("Unmarshal = %+v, %v", out, err)
			}

			var buf bytes.Buffer
			if err := c.MarshalTo(context.Background(), &buf, in); err != nil {
				t.Fatalf("MarshalTo: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), data) {
				t.Errorf("MarshalTo differs from Marshal")
			}
			out = record{}
			if err := c.UnmarshalFrom(context.Background(), &buf, &out); err != nil || out != in {
				t.Fatalf("UnmarshalFrom = %+v, %v", out, err)
			}
		})
	}
}

func TestUnmarshalFromTrailing(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		into   any
		kind   errors.Kind
		offset int
	}{
		{"trailing data", `{"Id":1} x`, new(record), errors.KindSyntax, 9},
		{"second value", `{"Id":1}{"Id":2}`, new(record), errors.KindSyntax, 8},
		{"trailing number", `7 8`, new(int), errors.KindSyntax, 2},
		{"trailing whitespace", "{\"Id\":1} \n\t", new(record), "", -1},
	}

	c := NewCodec(DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.UnmarshalFrom(context.Background(), strings.NewReader(tt.doc), tt.into)
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("UnmarshalFrom: %v", err)
				}
				if got := tt.into.(*record); got.Id != 1 {
					t.Errorf("decoded %+v", got)
				}
				return
			}
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if e := err.(*errors.Error); e.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", e.Offset, tt.offset)
			}
		})
	}
}

func TestCodecFacade(t *testing.T) {
	opts := testOptions(t)
	c := NewCodec(opts)
	in := recordV2{Id: 7, Name: "facade", Notes: []string{"n"}}

	s, err := c.MarshalString(in)
	if err != nil {
		t.Fatalf("MarshalString: %v", err)
	}
	if !strings.HasPrefix(s, `{"Id":7`) {
		t.Errorf("MarshalString = %s", s)
	}
	var fromString recordV2
	if err := c.UnmarshalString(s, &fromString); err != nil || !reflect.DeepEqual(fromString, in) {
		t.Fatalf("UnmarshalString = %+v, %v", fromString, err)
	}

	var buf bytes.Buffer
	if err := c.MarshalTo(context.Background(), &buf, in); err != nil {
		t.Fatalf("MarshalTo: %v", err)
	}
	var fromStream recordV2
	if err := c.UnmarshalFrom(context.Background(), &buf, &fromStream); err != nil || !reflect.DeepEqual(fromStream, in) {
		t.Fatalf("UnmarshalFrom = %+v, %v", fromStream, err)
	}

	data, _ := c.Marshal(in)
	v, err := c.DecodeType(data, reflect.TypeFor[recordV2]())
	if err != nil || !reflect.DeepEqual(v, in) {
		t.Fatalf("DecodeType = %#v, %v", v, err)
	}
	if v, err := c.DecodeType([]byte(" null "), reflect.TypeFor[*record]()); err != nil || v != nil {
		t.Errorf("DecodeType(null) = %#v, %v", v, err)
	}

	if err := c.Unmarshal(data, recordV2{}); !errors.IsKind(err, errors.KindNilPointer) {
		t.Errorf("non-pointer target err = %v", err)
	}
	if c.Name() != "json" {
		t.Errorf("Name = %q", c.Name())
	}
}

func TestConcurrentCodecs(t *testing.T) {
	c := NewCodec(testOptions(t))
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			in := record{Id: int32(i), Name: strings.Repeat("z", i)}
			data, err := c.Marshal(in)
			if err != nil {
				return err
			}
			var out record
			if err := c.Unmarshal(data, &out); err != nil {
				return err
			}
			if out != in {
				t.Errorf("goroutine %d: got %+v", i, out)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
