package wasm

import (
	"reflect"
	"testing"
	"time"

	"github.com/wippyai/neuropil-go/engine"
)

// flatMemory is a bump-allocated byte slice standing in for guest memory.
type flatMemory struct {
	buf  []byte
	next uint32
}

func newFlatMemory(size int) *flatMemory {
	return &flatMemory{buf: make([]byte, size), next: 8}
}

func (m *flatMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset : offset+n], true
}

func (m *flatMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *flatMemory) arena() *arena {
	return &arena{
		mem: m,
		alloc: func(size uint32) (uint32, error) {
			p := m.next
			m.next += size
			return p, nil
		},
	}
}

func TestSettingsLayout(t *testing.T) {
	mem := newFlatMemory(1024)
	want := engine.Settings{
		LogFile:       "np.log",
		Threads:       4,
		LogLevel:      engine.LogDefault,
		LeafsetSize:   8,
		JobqueueSize:  512,
		MaxMsgsPerSec: 1000,
	}

	s, err := encodeSettings(mem.arena(), want)
	if err != nil {
		t.Fatal(err)
	}
	if s.len != settingsSize {
		t.Errorf("struct size = %d", s.len)
	}
	got, err := decodeSettings(mem, s.ptr)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestTokenLayout(t *testing.T) {
	mem := newFlatMemory(4096)
	want := engine.Token{
		IssuedAt:   time.Unix(1_700_000_000, 0),
		NotBefore:  time.Unix(1_700_000_000, 0),
		ExpiresAt:  time.Unix(1_800_000_000, 500_000_000),
		Attributes: map[string]string{"a": "1", "b": ""},
		UUID:       "0f3c",
		Realm:      "lab",
		Issuer:     "issuer",
		Subject:    "urn:np:id:x",
		Audience:   "all",
		PublicKey:  []byte{9, 8, 7},
	}

	s, err := encodeToken(mem.arena(), want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeToken(mem, s.ptr)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) || !got.IssuedAt.Equal(want.IssuedAt) {
		t.Errorf("times = %v/%v", got.IssuedAt, got.ExpiresAt)
	}
	got.IssuedAt, got.NotBefore, got.ExpiresAt = want.IssuedAt, want.NotBefore, want.ExpiresAt
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %+v, want %+v", *got, want)
	}
}

func TestMxLayout(t *testing.T) {
	mem := newFlatMemory(1024)
	want := engine.DefaultMxProperties()
	want.ReplySubject = "reply"
	want.MaxRetry = 7
	want.CacheSize = 300

	s, err := encodeMx(mem.arena(), want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeMx(mem, s.ptr)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecode_OutOfRange(t *testing.T) {
	mem := newFlatMemory(64)
	if _, err := decodeToken(mem, 60); err == nil {
		t.Error("token past the end of memory decoded")
	}
	if _, err := decodeMessage(mem, 1<<20); err == nil {
		t.Error("message past the end of memory decoded")
	}
}

func TestAttributes(t *testing.T) {
	if encodeAttributes(nil) != nil || decodeAttributes(nil) != nil {
		t.Error("empty attributes should encode to nothing")
	}
	attrs := map[string]string{"z": "last", "a": "first"}
	b := encodeAttributes(attrs)
	if string(b) != "a\x00first\x00z\x00last\x00" {
		t.Errorf("encoding = %q", b)
	}
	if got := decodeAttributes(b); !reflect.DeepEqual(got, attrs) {
		t.Errorf("decoded = %v", got)
	}
}

func TestReadCString(t *testing.T) {
	mem := newFlatMemory(32)
	mem.Write(4, []byte("key not found\x00junk"))
	if got := readCString(mem, 4, 28); got != "key not found" {
		t.Errorf("readCString = %q", got)
	}
	if got := readCString(mem, 40, 8); got != "" {
		t.Errorf("out of range = %q", got)
	}
}

func TestCallbacks(t *testing.T) {
	c := newCallbacks()
	h := engine.Handle(16)

	if c.receiver(h, "x") != nil || c.decider(h, seatAuthorize) != nil {
		t.Fatal("empty table returned a callback")
	}
	c.setReceive(h, "x", func(engine.Handle, *engine.Message) bool { return true })
	c.setAAA(h, seatAuthorize, func(engine.Handle, *engine.Token) bool { return false })
	if c.receiver(h, "x") == nil || c.decider(h, seatAuthorize) == nil {
		t.Fatal("callbacks not stored")
	}
	if c.decider(h, seatAccounting) != nil {
		t.Error("unset seat returned a callback")
	}

	c.drop(h)
	if c.receiver(h, "x") != nil || c.decider(h, seatAuthorize) != nil {
		t.Error("callbacks survived drop")
	}
}
