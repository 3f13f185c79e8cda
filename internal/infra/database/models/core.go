package models

import (
	"time"
)

// Document keeps the payload as text so stored bytes are served back verbatim.
type Document struct {
	ID         string     `json:"id" gorm:"primaryKey;type:text"`
	Payload    string     `json:"payload" gorm:"type:text;not null"`
	OwnerMode  string     `json:"ownerMode" gorm:"type:text;not null;default:'none';index:idx_document_owner"`
	OwnerValue string     `json:"ownerValue" gorm:"type:text;not null;default:'';index:idx_document_owner"`
	Unlisted   bool       `json:"unlisted" gorm:"type:boolean;not null;default:false"`
	IsJSONLD   bool       `json:"isJsonLd" gorm:"column:is_json_ld;type:boolean;not null;default:false"`
	CDate      time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate      *time.Time `json:"mdate" gorm:"type:timestamp with time zone"`
}

// Activity rows are never updated or deleted. Records outlive their
// documents, so DocumentID carries no foreign key.
type Activity struct {
	Position   int64     `json:"position" gorm:"primaryKey;autoIncrement:false"`
	ID         string    `json:"id" gorm:"type:text;uniqueIndex"`
	Kind       string    `json:"kind" gorm:"type:text;not null"`
	DocumentID string    `json:"documentID" gorm:"type:text;index"`
	EndTime    time.Time `json:"endTime" gorm:"type:timestamp with time zone;not null"`
	Body       string    `json:"body" gorm:"type:text;not null"`
}

// ActivityHead is a single row holding the last assigned position.
// Appenders lock it to serialize position assignment.
type ActivityHead struct {
	ID       int   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Position int64 `json:"position" gorm:"not null;default:0"`
}
