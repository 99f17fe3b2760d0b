package dynamicproxy

import (
	"net/http"
	"time"
)

/*
	Cache policy

	Each route class maps to a fixed Cache-Control value. Static
	assets and markup also carry an Expires header relative to the
	time of the response
*/

type CacheClass string

const (
	ClassDynamic CacheClass = "dynamic"
	ClassStatic  CacheClass = "static"
	ClassMarkup  CacheClass = "markup"
)

const (
	staticMaxAge = 365 * 24 * time.Hour
	markupMaxAge = time.Hour
)

// CacheHeaders return the Cache-Control and Expires headers of class
func CacheHeaders(class CacheClass, now time.Time) [][]string {
	switch class {
	case ClassStatic:
		return [][]string{
			{"Cache-Control", "public, max-age=31536000, immutable"},
			{"Expires", now.Add(staticMaxAge).UTC().Format(http.TimeFormat)},
		}
	case ClassMarkup:
		return [][]string{
			{"Cache-Control", "public, max-age=3600"},
			{"Expires", now.Add(markupMaxAge).UTC().Format(http.TimeFormat)},
		}
	default:
		return [][]string{
			{"Cache-Control", "no-store"},
		}
	}
}
