package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"browserstealth/internal/profile"
)

// ProfileRecord is a named BrowserProfile kept for reuse across sessions.
type ProfileRecord struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Name        string                 `bson:"name" json:"name"`
	Description string                 `bson:"description,omitempty" json:"description,omitempty"`
	Profile     profile.BrowserProfile `bson:"profile" json:"profile"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updated_at"`
}

type SessionRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	ExecutionID string             `bson:"execution_id,omitempty" json:"execution_id,omitempty"`
	Profile     profile.Resolved   `bson:"profile" json:"profile"`
	Patches     []string           `bson:"patches" json:"patches"`
	StartedAt   time.Time          `bson:"started_at" json:"started_at"`
	ClosedAt    *time.Time         `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
}

type WorkerEvent struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID      string             `bson:"session_id" json:"session_id"`
	Kind           string             `bson:"kind" json:"kind"` // registered, deleted, unregistered
	RegistrationID string             `bson:"registration_id" json:"registration_id"`
	ScopeURL       string             `bson:"scope_url" json:"scope_url"`
	At             time.Time          `bson:"at" json:"at"`
}

type SessionState struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Key       string             `bson:"key" json:"key"` // e.g. "cookies:<profile>"
	Value     string             `bson:"value" json:"value"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

type BlockStat struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Mode        string             `bson:"mode" json:"mode"`
	Date        string             `bson:"date" json:"date"` // YYYY-MM-DD
	Host        string             `bson:"host" json:"host"`
	Count       int                `bson:"count" json:"count"`
	LastUpdated time.Time          `bson:"last_updated" json:"last_updated"`
}
