package session

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record is the stored form of a Session: indexed columns plus the aggregate as a JSON document.
type Record struct {
	ID        string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	OwnerID   string         `gorm:"type:varchar(128);not null;index" json:"owner_id"`
	Document  datatypes.JSON `gorm:"column:document;not null" json:"document"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Record) TableName() string { return "sessions" }

func (r *Record) Decode() (*Session, error) {
	var s Session
	if err := json.Unmarshal(r.Document, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", r.ID, err)
	}
	if s.PracticeClips == nil {
		s.PracticeClips = []PracticeClip{}
	}
	s.SessionID = r.ID
	s.UserID = r.OwnerID
	return &s, nil
}

// Encode copies s into the record, keeping the indexed columns in sync.
func (r *Record) Encode(s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	r.ID = s.SessionID
	r.OwnerID = s.UserID
	r.Document = datatypes.JSON(b)
	r.CreatedAt = s.CreatedAt
	r.UpdatedAt = s.UpdatedAt
	return nil
}
