// Package suntime is a deterministic NOAA-style estimator for dawn,
// sunrise, sunset and dusk. It exists only to resolve symbolic schedule
// times for display; the host does its own solar math at runtime.
package suntime

import (
	"math"
	"time"
)

// Zenith angles in degrees: official rise/set and civil twilight.
const (
	zenithOfficial = 90.833
	zenithCivil    = 96.0
)

type Times struct {
	Dawn    time.Time
	SunRise time.Time
	SunSet  time.Time
	Dusk    time.Time
}

type Estimator struct {
	Latitude  float64
	Longitude float64
}

func New(lat, lon float64) *Estimator {
	return &Estimator{Latitude: lat, Longitude: lon}
}

// Estimate computes the four solar events for the given civil date in
// its location. Polar day/night degenerates to solar noon so callers
// always get a usable wall-clock value.
func (e *Estimator) Estimate(date time.Time) Times {
	loc := date.Location()
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	rise, set := e.eventMinutesUTC(midnight, zenithOfficial)
	dawn, dusk := e.eventMinutesUTC(midnight, zenithCivil)

	return Times{
		Dawn:    utcMinutes(midnight, dawn),
		SunRise: utcMinutes(midnight, rise),
		SunSet:  utcMinutes(midnight, set),
		Dusk:    utcMinutes(midnight, dusk),
	}
}

// Resolve maps a symbolic token plus minute offset onto a concrete time
// for the date. Unknown tokens return the zero time.
func (e *Estimator) Resolve(token string, offsetMinutes int, date time.Time) time.Time {
	t := e.Estimate(date)
	var base time.Time
	switch token {
	case "Dawn":
		base = t.Dawn
	case "SunRise":
		base = t.SunRise
	case "SunSet":
		base = t.SunSet
	case "Dusk":
		base = t.Dusk
	default:
		return time.Time{}
	}
	return base.Add(time.Duration(offsetMinutes) * time.Minute)
}

// eventMinutesUTC returns (morning, evening) event times in minutes
// after 00:00 UTC for the estimator's position, using the NOAA
// approximation: fractional year, equation of time, solar declination,
// then the hour angle for the requested zenith.
func (e *Estimator) eventMinutesUTC(midnight time.Time, zenith float64) (float64, float64) {
	doy := float64(midnight.YearDay())
	gamma := 2 * math.Pi / 365 * (doy - 1 + 0.5)

	eqtime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) -
		0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) -
		0.040849*math.Sin(2*gamma))

	decl := 0.006918 -
		0.399912*math.Cos(gamma) +
		0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) +
		0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) +
		0.00148*math.Sin(3*gamma)

	latRad := e.Latitude * math.Pi / 180
	cosHA := (math.Cos(zenith*math.Pi/180) - math.Sin(latRad)*math.Sin(decl)) /
		(math.Cos(latRad) * math.Cos(decl))

	noon := 720 - 4*e.Longitude - eqtime
	if cosHA < -1 || cosHA > 1 {
		// Sun never crosses this zenith today; pin to solar noon.
		return noon, noon
	}
	haDeg := math.Acos(cosHA) * 180 / math.Pi
	return noon - 4*haDeg, noon + 4*haDeg
}

func utcMinutes(localMidnight time.Time, minutes float64) time.Time {
	utcDay := time.Date(localMidnight.Year(), localMidnight.Month(), localMidnight.Day(),
		0, 0, 0, 0, time.UTC)
	return utcDay.Add(time.Duration(minutes * float64(time.Minute))).In(localMidnight.Location())
}
