package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Database wraps a MaxMind country database. A nil *Database is valid
// and resolves nothing.
type Database struct {
	reader *geoip2.Reader
}

func Open(path string) (*Database, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Database{reader: r}, nil
}

// Lookup returns the ISO country code for an IP literal. Hostnames are
// not resolved and yield "".
func (d *Database) Lookup(host string) string {
	if d == nil || d.reader == nil {
		return ""
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}

	record, err := d.reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return "UNKNOWN"
	}

	return record.Country.IsoCode
}

func (d *Database) Close() error {
	if d == nil || d.reader == nil {
		return nil
	}
	return d.reader.Close()
}
