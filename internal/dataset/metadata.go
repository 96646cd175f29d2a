package dataset

import (
	"time"

	"github.com/google/uuid"
)

// RangeLayout formats the metadata range key as year, month, 12-hour clock
// hour, minute and second. The day is deliberately absent; stored records
// depend on this exact layout.
const RangeLayout = "200601030405"

// SessionMetadata identifies one generated dataset. SessionID is the hash
// key and RangeTimestamp the range key of the stored record.
type SessionMetadata struct {
	SessionID      string `json:"session_id" yaml:"session_id" jsonschema:"required,description=Process-lifetime session identifier"`
	RangeTimestamp string `json:"range_timestamp" yaml:"range_timestamp" jsonschema:"required,pattern=^[0-9]{12}$,description=Generation time in RangeLayout"`
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// MetadataBuilder stamps SessionMetadata for a fixed session.
type MetadataBuilder struct {
	sessionID string
	now       func() time.Time
}

// NewMetadataBuilder creates a builder for sessionID. An empty sessionID is
// replaced by NewSessionID.
func NewMetadataBuilder(sessionID string) *MetadataBuilder {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return &MetadataBuilder{sessionID: sessionID, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (b *MetadataBuilder) WithClock(now func() time.Time) *MetadataBuilder {
	b.now = now
	return b
}

// SessionID returns the builder's session identifier.
func (b *MetadataBuilder) SessionID() string {
	return b.sessionID
}

// Build stamps metadata with the current time.
func (b *MetadataBuilder) Build() SessionMetadata {
	return SessionMetadata{
		SessionID:      b.sessionID,
		RangeTimestamp: b.now().Format(RangeLayout),
	}
}
