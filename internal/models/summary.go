package models

import (
	"encoding/json"
	"time"
)

// Summary represents a generated video summary. Each non-archived row
// counts toward its owner's usage quota.
type Summary struct {
	ID   uint   `gorm:"column:id;primaryKey" json:"id"`
	UUID string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`

	// Owner: UserID for authenticated users, Fingerprint for anonymous ones
	UserID      *uint  `gorm:"column:user_id;index" json:"user_id,omitempty"`
	User        *User  `gorm:"-" json:"user,omitempty"`
	Fingerprint string `gorm:"column:fingerprint;size:64;index" json:"-"`

	// Video metadata
	VideoID     string `gorm:"column:video_id;size:20;not null;index" json:"video_id"`
	VideoURL    string `gorm:"column:video_url;size:500;not null" json:"video_url"`
	Title       string `gorm:"column:title;size:500" json:"title"`
	ChannelName string `gorm:"column:channel_name;size:255" json:"channel_name"`
	Duration    int    `gorm:"column:duration;default:0" json:"duration"` // seconds

	// Summary content
	Content       string          `gorm:"column:content;type:text" json:"content"`
	Synopsis      string          `gorm:"column:synopsis;type:text" json:"synopsis"`
	KeyPoints     json.RawMessage `gorm:"column:key_points;type:jsonb" json:"key_points"`
	KeyMoments    json.RawMessage `gorm:"column:key_moments;type:jsonb" json:"key_moments"`
	Flashcards    json.RawMessage `gorm:"column:flashcards;type:jsonb" json:"flashcards"`
	QuizQuestions json.RawMessage `gorm:"column:quiz_questions;type:jsonb" json:"quiz_questions"`
	Glossary      json.RawMessage `gorm:"column:glossary;type:jsonb" json:"glossary"`

	// Archived summaries are kept but excluded from quota counting
	Archived bool `gorm:"column:archived;default:false;index" json:"archived"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Summary) TableName() string {
	return "summaries"
}
