package domain

import "time"

// ActivityRecord is one entry of the append-only activity log.
// Position is assigned by the repository at append time.
type ActivityRecord struct {
	ID         string       `json:"id"`
	Position   int64        `json:"position"`
	Kind       ActivityKind `json:"kind"`
	DocumentID string       `json:"documentID"`
	EndTime    time.Time    `json:"endTime"`
	Body       []byte       `json:"body"`
}

// NestedNode is a nested reference node found while rewriting a container.
type NestedNode struct {
	ID     string
	Type   any
	Within []string
}

// ActivitySubject carries everything the activity log needs to decide on,
// and render, records for a persisted document.
type ActivitySubject struct {
	Document      Document
	ExpandedTypes []string
	DocumentType  any
	IsContainer   bool
	Nested        []NestedNode
}
