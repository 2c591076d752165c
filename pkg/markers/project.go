// Package markers turns events into clustered map markers. It projects the
// filtered view into GeoJSON, builds the marker layers on first use and
// replaces the source data on every later update.
package markers

import (
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/events"
)

// Feature converts one event into a GeoJSON point carrying every field the
// popup and layer styling read. The feature id is the "type:id" key since
// ids are only unique within one event type.
func Feature(e events.Event) *geojson.Feature {
	f := geojson.NewFeature(e.Point())
	f.ID = e.Key().String()

	p := f.Properties
	p["id"] = e.ID
	p["title"] = e.Title
	p["description"] = e.Description
	p["source"] = e.Source
	p["verified"] = e.Verified
	p["type"] = string(e.Type)
	p["emoji"] = e.Type.Glyph()
	setString(p, "url", e.URL)
	if !e.CreatedAt.IsZero() {
		p["createdAt"] = e.CreatedAt.Format(time.RFC3339)
	}
	if e.OriginalCreatedAt != nil {
		p["originalCreatedAt"] = e.OriginalCreatedAt.Format(time.RFC3339)
	}

	setString(p, "severity", string(e.Severity))
	setString(p, "closureType", e.ClosureType)
	setString(p, "reason", e.Reason)
	if len(e.AffectedRoutes) > 0 {
		p["affectedRoutes"] = e.AffectedRoutes
	}
	if len(e.AlternativeRoutes) > 0 {
		p["alternativeRoutes"] = e.AlternativeRoutes
	}

	setString(p, "tweetId", e.TweetID)
	setString(p, "extractedLocation", e.ExtractedLocation)
	if e.ConfidenceScore != nil {
		p["confidenceScore"] = *e.ConfidenceScore
	}
	if e.SocialMetrics != nil {
		p["socialMetrics"] = e.SocialMetrics
	}
	if e.UserInfo != nil {
		p["userInfo"] = e.UserInfo
	}
	return f
}

func setString(p geojson.Properties, key, value string) {
	if value != "" {
		p[key] = value
	}
}

// Project converts events into a feature collection in view order. Events
// that fail validation, such as out-of-range coordinates, are left out and
// logged at warn level on logger, which may be nil.
func Project(evs []events.Event, logger *zerolog.Logger) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range evs {
		if err := e.Validate(); err != nil {
			if logger != nil {
				logger.Warn().
					Err(err).
					Str("event", e.Key().String()).
					Float64("lat", e.Lat).
					Float64("lng", e.Lng).
					Msg("Skipping invalid event")
			}
			continue
		}
		fc.Append(Feature(e))
	}
	return fc
}
