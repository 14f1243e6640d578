// Package geoip resolves visitor IPs to ISO country codes.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP looks up countries in a MaxMind database, or in a JSON list of CIDR
// ranges when the file is not an mmdb (local runs and tests).
type GeoIP struct {
	db     *geoip2.Reader
	ranges []cidrCountry
}

type cidrCountry struct {
	net     *net.IPNet
	country string
}

// Open loads the database at path.
func Open(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if jerr := json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	g := &GeoIP{}
	for _, e := range entries {
		_, n, perr := net.ParseCIDR(e.Net)
		if perr != nil {
			return nil, fmt.Errorf("geoip range %q: %w", e.Net, perr)
		}
		g.ranges = append(g.ranges, cidrCountry{net: n, country: e.Country})
	}
	return g, nil
}

// Country returns the ISO country code for ip, or "" when unknown. A nil
// GeoIP always returns "".
func (g *GeoIP) Country(ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	if g.db != nil {
		if rec, err := g.db.Country(ip); err == nil {
			return rec.Country.IsoCode
		}
		return ""
	}
	for _, r := range g.ranges {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// CountryString is Country for a textual address.
func (g *GeoIP) CountryString(addr string) string {
	return g.Country(net.ParseIP(addr))
}

// Close releases the underlying database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
