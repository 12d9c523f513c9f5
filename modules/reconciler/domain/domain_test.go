package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_ScraperID(t *testing.T) {
	assert.Equal(t, "nyc_efap", Metadata{"scraper_id": "nyc_efap"}.ScraperID())
	assert.Equal(t, "", Metadata{"scraper_id": 42}.ScraperID())
	assert.Equal(t, "", Metadata{}.ScraperID())
	assert.Equal(t, "", Metadata(nil).ScraperID())
}

func TestLocationInput_HasCoordinates(t *testing.T) {
	lat, lon := 40.7, -74.0
	assert.True(t, LocationInput{Latitude: &lat, Longitude: &lon}.HasCoordinates())
	assert.False(t, LocationInput{Latitude: &lat}.HasCoordinates())
	assert.False(t, LocationInput{}.HasCoordinates())
}

func TestSchedule_DedupKey(t *testing.T) {
	a := Schedule{Freq: "WEEKLY", Wkst: "MO", OpensAt: "09:00", ClosesAt: "17:00"}
	b := Schedule{Freq: "WEEKLY", Wkst: "MO", OpensAt: "09:00", ClosesAt: "17:00", Description: "differs"}
	c := Schedule{Freq: "WEEKLY", Wkst: "TU", OpensAt: "09:00", ClosesAt: "17:00"}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}
