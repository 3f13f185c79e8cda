package jsonkeeper

import (
	"time"
)

const (
	DiscoveryContext       string = "http://iiif.io/api/discovery/1/context.json"
	ActivityStreamsContext string = "https://www.w3.org/ns/activitystreams"
)

// ObjectRef points at a resource an Activity talks about.
type ObjectRef struct {
	ID   string `json:"id"`
	Type any    `json:"type,omitempty"`
}

type Activity struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Origin  *ObjectRef  `json:"origin,omitempty"`
	Object  any         `json:"object"`
	Target  []ObjectRef `json:"target,omitempty"`
	EndTime time.Time   `json:"endTime"`
}

type PageRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type OrderedCollection struct {
	Context    any      `json:"@context"`
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	TotalItems int64    `json:"totalItems"`
	First      *PageRef `json:"first,omitempty"`
	Last       *PageRef `json:"last,omitempty"`
}

type OrderedCollectionPage struct {
	Context      any        `json:"@context"`
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	PartOf       PageRef    `json:"partOf"`
	StartIndex   int64      `json:"startIndex"`
	Prev         *PageRef   `json:"prev,omitempty"`
	Next         *PageRef   `json:"next,omitempty"`
	OrderedItems []Activity `json:"orderedItems"`
}

// Event is what the realtime channel carries for every appended activity.
type Event struct {
	Position int64    `json:"position"`
	Activity Activity `json:"activity"`
}

// DocumentMetadata is the status view of a document. Ownership is one of
// "none", "self-managed" or "verified"; Owner is the verified subject and
// stays empty otherwise, since self-managed tokens are only kept as digests.
type DocumentMetadata struct {
	ID        string         `json:"id"`
	Ownership string         `json:"ownership"`
	Owner     string         `json:"owner,omitempty"`
	Unlisted  bool           `json:"unlisted"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at"`
	Extra     map[string]any `json:"-"`
}
