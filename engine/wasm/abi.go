package wasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wippyai/neuropil-go/engine"
)

// Struct layouts shared with the guest. All integers are little endian,
// timestamps are float64 seconds since the Unix epoch and byte strings are
// (ptr u32, len u32) pairs pointing into guest memory.
const (
	settingsSize = 24
	messageSize  = 64
	tokenSize    = 80
	mxSize       = 40
)

// memory is the subset of api.Memory the codec needs.
type memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

func readStruct(mem memory, ptr, size uint32) ([]byte, error) {
	b, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("struct at 0x%x (+%d) is out of range", ptr, size)
	}
	return b, nil
}

// readBytes copies the (ptr, len) pair stored at off in b.
func readBytes(mem memory, b []byte, off int) ([]byte, error) {
	ptr := binary.LittleEndian.Uint32(b[off:])
	n := binary.LittleEndian.Uint32(b[off+4:])
	if n == 0 {
		return nil, nil
	}
	v, ok := mem.Read(ptr, n)
	if !ok {
		return nil, fmt.Errorf("bytes at 0x%x (+%d) are out of range", ptr, n)
	}
	return append([]byte(nil), v...), nil
}

func readString(mem memory, b []byte, off int) (string, error) {
	v, err := readBytes(mem, b, off)
	return string(v), err
}

func putSpan(b []byte, off int, s span) {
	binary.LittleEndian.PutUint32(b[off:], s.ptr)
	binary.LittleEndian.PutUint32(b[off+4:], s.len)
}

func toSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func getTime(b []byte, off int) time.Time {
	return fromSeconds(math.Float64frombits(binary.LittleEndian.Uint64(b[off:])))
}

func putTime(b []byte, off int, t time.Time) {
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(toSeconds(t)))
}

func getDuration(b []byte, off int) time.Duration {
	return time.Duration(math.Float64frombits(binary.LittleEndian.Uint64(b[off:])) * float64(time.Second))
}

func putDuration(b []byte, off int, d time.Duration) {
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(d.Seconds()))
}

// span is a guest allocation.
type span struct {
	ptr uint32
	len uint32
}

// arena tracks guest allocations made for one call so they can be freed
// together.
type arena struct {
	mem   memory
	alloc func(size uint32) (uint32, error)
	spans []span
}

// bytes copies v into guest memory. Empty values yield a zero span.
func (a *arena) bytes(v []byte) (span, error) {
	if len(v) == 0 {
		return span{}, nil
	}
	ptr, err := a.alloc(uint32(len(v)))
	if err != nil {
		return span{}, err
	}
	s := span{ptr: ptr, len: uint32(len(v))}
	a.spans = append(a.spans, s)
	if !a.mem.Write(ptr, v) {
		return span{}, fmt.Errorf("write %d bytes at 0x%x out of range", len(v), ptr)
	}
	return s, nil
}

func (a *arena) string(v string) (span, error) {
	return a.bytes([]byte(v))
}

// zeroed allocates size zero bytes.
func (a *arena) zeroed(size uint32) (span, error) {
	return a.bytes(make([]byte, size))
}

func decodeSettings(mem memory, ptr uint32) (engine.Settings, error) {
	b, err := readStruct(mem, ptr, settingsSize)
	if err != nil {
		return engine.Settings{}, err
	}
	s := engine.Settings{
		Threads:       binary.LittleEndian.Uint32(b[0:]),
		LogLevel:      binary.LittleEndian.Uint32(b[4:]),
		LeafsetSize:   binary.LittleEndian.Uint16(b[8:]),
		JobqueueSize:  binary.LittleEndian.Uint16(b[10:]),
		MaxMsgsPerSec: binary.LittleEndian.Uint16(b[12:]),
	}
	s.LogFile, err = readString(mem, b, 16)
	return s, err
}

func encodeSettings(a *arena, s engine.Settings) (span, error) {
	logFile, err := a.string(s.LogFile)
	if err != nil {
		return span{}, err
	}
	b := make([]byte, settingsSize)
	binary.LittleEndian.PutUint32(b[0:], s.Threads)
	binary.LittleEndian.PutUint32(b[4:], s.LogLevel)
	binary.LittleEndian.PutUint16(b[8:], s.LeafsetSize)
	binary.LittleEndian.PutUint16(b[10:], s.JobqueueSize)
	binary.LittleEndian.PutUint16(b[12:], s.MaxMsgsPerSec)
	putSpan(b, 16, logFile)
	return a.bytes(b)
}

func decodeMessage(mem memory, ptr uint32) (*engine.Message, error) {
	b, err := readStruct(mem, ptr, messageSize)
	if err != nil {
		return nil, err
	}
	msg := &engine.Message{ReceivedAt: getTime(b, 0)}
	if msg.UUID, err = readString(mem, b, 8); err != nil {
		return nil, err
	}
	if msg.Subject, err = readString(mem, b, 16); err != nil {
		return nil, err
	}
	if msg.Data, err = readBytes(mem, b, 24); err != nil {
		return nil, err
	}
	copy(msg.From[:], b[32:64])
	return msg, nil
}

func decodeToken(mem memory, ptr uint32) (*engine.Token, error) {
	b, err := readStruct(mem, ptr, tokenSize)
	if err != nil {
		return nil, err
	}
	tok := &engine.Token{
		IssuedAt:  getTime(b, 0),
		NotBefore: getTime(b, 8),
		ExpiresAt: getTime(b, 16),
	}
	fields := []struct {
		dst *string
		off int
	}{
		{&tok.UUID, 24},
		{&tok.Realm, 32},
		{&tok.Issuer, 40},
		{&tok.Subject, 48},
		{&tok.Audience, 56},
	}
	for _, f := range fields {
		if *f.dst, err = readString(mem, b, f.off); err != nil {
			return nil, err
		}
	}
	if tok.PublicKey, err = readBytes(mem, b, 64); err != nil {
		return nil, err
	}
	attrs, err := readBytes(mem, b, 72)
	if err != nil {
		return nil, err
	}
	tok.Attributes = decodeAttributes(attrs)
	return tok, nil
}

func encodeToken(a *arena, tok engine.Token) (span, error) {
	b := make([]byte, tokenSize)
	putTime(b, 0, tok.IssuedAt)
	putTime(b, 8, tok.NotBefore)
	putTime(b, 16, tok.ExpiresAt)

	fields := []struct {
		v   []byte
		off int
	}{
		{[]byte(tok.UUID), 24},
		{[]byte(tok.Realm), 32},
		{[]byte(tok.Issuer), 40},
		{[]byte(tok.Subject), 48},
		{[]byte(tok.Audience), 56},
		{tok.PublicKey, 64},
		{encodeAttributes(tok.Attributes), 72},
	}
	for _, f := range fields {
		s, err := a.bytes(f.v)
		if err != nil {
			return span{}, err
		}
		putSpan(b, f.off, s)
	}
	return a.bytes(b)
}

func decodeMx(mem memory, ptr uint32) (engine.MxProperties, error) {
	b, err := readStruct(mem, ptr, mxSize)
	if err != nil {
		return engine.MxProperties{}, err
	}
	p := engine.MxProperties{
		Role:              engine.MxRole(b[0]),
		AckMode:           engine.AckMode(b[1]),
		CachePolicy:       engine.CachePolicy(b[2]),
		MaxParallel:       b[3],
		MaxRetry:          b[4],
		CacheSize:         binary.LittleEndian.Uint16(b[6:]),
		IntentTTL:         getDuration(b, 8),
		IntentUpdateAfter: getDuration(b, 16),
		MessageTTL:        getDuration(b, 24),
	}
	p.ReplySubject, err = readString(mem, b, 32)
	return p, err
}

func encodeMx(a *arena, p engine.MxProperties) (span, error) {
	reply, err := a.string(p.ReplySubject)
	if err != nil {
		return span{}, err
	}
	b := make([]byte, mxSize)
	b[0] = byte(p.Role)
	b[1] = byte(p.AckMode)
	b[2] = byte(p.CachePolicy)
	b[3] = p.MaxParallel
	b[4] = p.MaxRetry
	binary.LittleEndian.PutUint16(b[6:], p.CacheSize)
	putDuration(b, 8, p.IntentTTL)
	putDuration(b, 16, p.IntentUpdateAfter)
	putDuration(b, 24, p.MessageTTL)
	putSpan(b, 32, reply)
	return a.bytes(b)
}

// Attributes travel as NUL-separated key, value pairs in key order.
func encodeAttributes(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b []byte
	for _, k := range keys {
		b = append(b, k...)
		b = append(b, 0)
		b = append(b, attrs[k]...)
		b = append(b, 0)
	}
	return b
}

func decodeAttributes(b []byte) map[string]string {
	if len(b) == 0 {
		return nil
	}
	parts := strings.Split(strings.TrimSuffix(string(b), "\x00"), "\x00")
	attrs := make(map[string]string, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		attrs[parts[i]] = parts[i+1]
	}
	return attrs
}

// readCString reads a NUL-terminated string of at most max bytes.
func readCString(mem memory, ptr uint32, max uint32) string {
	b, ok := mem.Read(ptr, max)
	if !ok {
		return ""
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
