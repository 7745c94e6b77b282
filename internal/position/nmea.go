package position

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	knotsToMps = 0.514444
	// rough UERE used to turn HDOP into metres
	hdopMeters = 5.0
)

var (
	ErrChecksum = errors.New("nmea checksum mismatch")
	ErrNoFix    = errors.New("receiver has no fix")
)

// parseNMEA decodes RMC and GGA sentences. ok is false for sentences that
// carry no position; err is set for corrupt sentences or a lost fix.
func parseNMEA(line string, received time.Time) (s Sample, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sample{}, false, nil
	}
	body, sum, hasSum := strings.Cut(line[1:], "*")
	if hasSum && !validChecksum(body, sum) {
		return Sample{}, false, ErrChecksum
	}

	fields := strings.Split(body, ",")
	if len(fields[0]) < 5 {
		return Sample{}, false, nil
	}
	switch fields[0][2:] {
	case "RMC":
		return parseRMC(fields, received)
	case "GGA":
		return parseGGA(fields, received)
	}
	return Sample{}, false, nil
}

// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a
func parseRMC(f []string, received time.Time) (Sample, bool, error) {
	if len(f) < 9 {
		return Sample{}, false, fmt.Errorf("short RMC sentence: %d fields", len(f))
	}
	if f[2] != "A" {
		return Sample{}, false, ErrNoFix
	}
	lat, lon, err := parseLatLon(f[3], f[4], f[5], f[6])
	if err != nil {
		return Sample{}, false, err
	}
	s := Sample{Latitude: &lat, Longitude: &lon, Timestamp: received}
	if knots, err := strconv.ParseFloat(f[7], 64); err == nil {
		speed := knots * knotsToMps
		s.Speed = &speed
	}
	if course, err := strconv.ParseFloat(f[8], 64); err == nil {
		s.Heading = &course
	}
	return s, true, nil
}

// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,q,xx,x.x,x.x,M,...
func parseGGA(f []string, received time.Time) (Sample, bool, error) {
	if len(f) < 9 {
		return Sample{}, false, fmt.Errorf("short GGA sentence: %d fields", len(f))
	}
	if f[6] == "" || f[6] == "0" {
		return Sample{}, false, ErrNoFix
	}
	lat, lon, err := parseLatLon(f[2], f[3], f[4], f[5])
	if err != nil {
		return Sample{}, false, err
	}
	s := Sample{Latitude: &lat, Longitude: &lon, Timestamp: received}
	if hdop, err := strconv.ParseFloat(f[8], 64); err == nil {
		acc := hdop * hdopMeters
		s.Accuracy = &acc
	}
	return s, true, nil
}

func parseLatLon(lat, ns, lon, ew string) (float64, float64, error) {
	la, err := parseDegMin(lat, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", lat, err)
	}
	lo, err := parseDegMin(lon, 3)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", lon, err)
	}
	if ns == "S" {
		la = -la
	}
	if ew == "W" {
		lo = -lo
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return 0, 0, fmt.Errorf("coordinate out of range: %v,%v", la, lo)
	}
	return la, lo, nil
}

// parseDegMin converts NMEA (d)ddmm.mmmm to decimal degrees.
func parseDegMin(v string, degDigits int) (float64, error) {
	if len(v) < degDigits+2 {
		return 0, errors.New("too short")
	}
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(v[degDigits:], 64)
	if err != nil {
		return 0, err
	}
	if minutes >= 60 {
		return 0, errors.New("minutes out of range")
	}
	return float64(deg) + minutes/60, nil
}

func validChecksum(body, sum string) bool {
	want, err := strconv.ParseUint(strings.TrimSpace(sum), 16, 8)
	if err != nil {
		return false
	}
	var got byte
	for i := 0; i < len(body); i++ {
		got ^= body[i]
	}
	return byte(want) == got
}
