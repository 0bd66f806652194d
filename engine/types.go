package engine

import (
	"encoding/hex"
	"time"
)

// Handle is an opaque reference to an engine context.
// Handle 0 is reserved and always invalid.
type Handle uintptr

// Valid reports whether h is non-zero.
func (h Handle) Valid() bool { return h != 0 }

// Settings configures a new context.
type Settings struct {
	LogFile       string `yaml:"log_file"`
	Threads       uint32 `yaml:"threads"`
	LogLevel      uint32 `yaml:"log_level"`
	LeafsetSize   uint16 `yaml:"leafset_size"`
	JobqueueSize  uint16 `yaml:"jobqueue_size"`
	MaxMsgsPerSec uint16 `yaml:"max_msgs_per_sec"`
}

// Log levels understood by the engine, combinable as a bit mask.
const (
	LogError   uint32 = 0x0001
	LogWarn    uint32 = 0x0002
	LogInfo    uint32 = 0x0004
	LogDebug   uint32 = 0x0008
	LogTrace   uint32 = 0x1000
	LogDefault        = LogError | LogWarn | LogInfo
)

// DefaultSettings are the settings backends start from.
func DefaultSettings() Settings {
	return Settings{
		Threads:       3,
		LogFile:       "",
		LogLevel:      LogDefault,
		LeafsetSize:   8,
		JobqueueSize:  512,
		MaxMsgsPerSec: 1000,
	}
}

// ID is a 32 byte engine identifier (node, subject or sender fingerprint).
type ID [32]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Message is an inbound message as delivered to a subject trampoline.
type Message struct {
	ReceivedAt time.Time
	UUID       string
	Subject    string
	Data       []byte
	From       ID
}

// Token is an AAA token presented to an authenticate, authorize or
// accounting decision.
type Token struct {
	IssuedAt   time.Time
	NotBefore  time.Time
	ExpiresAt  time.Time
	Attributes map[string]string
	UUID       string
	Realm      string
	Issuer     string
	Subject    string
	Audience   string
	PublicKey  []byte
}

// Expired reports whether the token is expired at now. A zero expiry never expires.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// MxRole is the message exchange role of a subject.
type MxRole uint8

const (
	RoleNone MxRole = iota
	RoleSender
	RoleReceiver
)

// AckMode selects the acknowledgement mode of a subject.
type AckMode uint8

const (
	AckNone AckMode = iota
	AckDestination
	AckClient
)

// CachePolicy selects which messages a full cache drops.
type CachePolicy uint8

const (
	CacheFIFO CachePolicy = iota
	CacheLIFO
	CacheOverflowPurge
	CacheOverflowReject
)

// MxProperties are per-subject message exchange properties.
type MxProperties struct {
	ReplySubject      string
	IntentTTL         time.Duration
	IntentUpdateAfter time.Duration
	MessageTTL        time.Duration
	CacheSize         uint16
	MaxParallel       uint8
	MaxRetry          uint8
	Role              MxRole
	AckMode           AckMode
	CachePolicy       CachePolicy
}

// DefaultMxProperties are the properties of a subject nobody configured.
func DefaultMxProperties() MxProperties {
	return MxProperties{
		Role:              RoleNone,
		AckMode:           AckNone,
		CacheSize:         32,
		CachePolicy:       CacheFIFO,
		MaxParallel:       1,
		MaxRetry:          5,
		IntentTTL:         5 * time.Minute,
		IntentUpdateAfter: time.Minute,
		MessageTTL:        20 * time.Second,
	}
}

// ContextStatus is the lifecycle state of an engine context.
type ContextStatus uint8

const (
	StatusError ContextStatus = iota
	StatusUninitialized
	StatusRunning
	StatusStopped
	StatusShutdown
)

func (s ContextStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusShutdown:
		return "shutdown"
	default:
		return "error"
	}
}
