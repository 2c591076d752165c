// Package events defines the geotagged civic-safety records shown on the map
// and the filters that select views over them.
package events

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/safemelbourne/livemap/pkg/errors"
)

// Category classifies an event. Values other than the named ones are kept
// verbatim and rendered with the generic glyph.
type Category string

// Known categories.
const (
	CategoryProtest     Category = "protest"
	CategoryRoadClosure Category = "road_closure"
	CategoryWarning     Category = "warning"
)

// Glyph returns the emoji drawn on top of an event's marker.
func (c Category) Glyph() string {
	switch c {
	case CategoryProtest:
		return "🔥"
	case CategoryRoadClosure:
		return "🚧"
	case CategoryWarning:
		return "⚠️"
	default:
		return "📍"
	}
}

// String returns the wire value of the category.
func (c Category) String() string {
	return string(c)
}

// Severity grades a road closure.
type Severity string

// Road closure severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SocialMetrics is the engagement a warning's source post received.
type SocialMetrics struct {
	Bookmarks int    `json:"bookmarks"`
	Favorites int    `json:"favorites"`
	Retweets  int    `json:"retweets"`
	Views     string `json:"views"`
	Quotes    int    `json:"quotes"`
	Replies   int    `json:"replies"`
}

// UserInfo describes the account that posted a warning.
type UserInfo struct {
	CreatedAt       string `json:"created_at"`
	FollowersCount  int    `json:"followers_count"`
	FriendsCount    int    `json:"friends_count"`
	FavouritesCount int    `json:"favourites_count"`
	Verified        bool   `json:"verified"`
}

// Event is a point-located civic-safety record.
type Event struct {
	ID                int64      `json:"id"`
	Type              Category   `json:"type"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Lat               float64    `json:"lat"`
	Lng               float64    `json:"lng"`
	Source            string     `json:"source"`
	URL               string     `json:"url,omitempty"`
	Verified          bool       `json:"verified"`
	CreatedAt         time.Time  `json:"createdAt"`
	OriginalCreatedAt *time.Time `json:"originalCreatedAt,omitempty"`

	// Road closure fields
	ClosureType       string   `json:"closureType,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	Severity          Severity `json:"severity,omitempty"`
	AffectedRoutes    []string `json:"affectedRoutes,omitempty"`
	AlternativeRoutes []string `json:"alternativeRoutes,omitempty"`

	// Warning fields
	TweetID           string         `json:"tweetId,omitempty"`
	ExtractedLocation string         `json:"extractedLocation,omitempty"`
	ConfidenceScore   *float64       `json:"confidenceScore,omitempty"`
	SocialMetrics     *SocialMetrics `json:"socialMetrics,omitempty"`
	UserInfo          *UserInfo      `json:"userInfo,omitempty"`
}

// Key identifies an event within a session. Numeric ids are only unique
// inside one category, so the category is part of the key.
type Key struct {
	Type Category
	ID   int64
}

// String formats the key as type:id.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.ID)
}

// Key returns the identity key of the event.
func (e Event) Key() Key {
	return Key{Type: e.Type, ID: e.ID}
}

// Point returns the event location as an orb point in [lng, lat] order.
func (e Event) Point() orb.Point {
	return orb.Point{e.Lng, e.Lat}
}

// Validate checks the coordinates and confidence score ranges.
func (e Event) Validate() error {
	if math.IsNaN(e.Lat) || e.Lat < -90 || e.Lat > 90 {
		return errors.NewValidationError("lat", e.Lat, "latitude must be within -90..90")
	}
	if math.IsNaN(e.Lng) || e.Lng < -180 || e.Lng > 180 {
		return errors.NewValidationError("lng", e.Lng, "longitude must be within -180..180")
	}
	if e.ConfidenceScore != nil && (*e.ConfidenceScore < 0 || *e.ConfidenceScore > 1) {
		return errors.NewValidationError("confidenceScore", *e.ConfidenceScore, "confidence must be within 0..1")
	}
	return nil
}
