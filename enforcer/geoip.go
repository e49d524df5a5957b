package enforcer

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocator maps addresses to ISO country codes. A nil *GeoLocator answers
// "" for everything.
type GeoLocator struct {
	db *geoip2.Reader
}

func OpenGeoLocator(path string) (*GeoLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoLocator{db: db}, nil
}

func (g *GeoLocator) Country(ip net.IP) string {
	if g == nil || g.db == nil {
		return ""
	}
	record, err := g.db.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (g *GeoLocator) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
