package nmea

import (
	"strconv"
	"strings"
)

const knotsToKmh = 1.852

// Fix is the decoded position/speed state of one RMC sentence.
//
// Lat/Lon keep the raw NMEA value text; NS/EW are the hemisphere letters.
// DataReady is false when the sentence was too short to carry the minimum
// fields, in which case the fix must not be logged.
type Fix struct {
	Lat string
	NS  string
	Lon string
	EW  string

	SpeedKmh float64

	// Active mirrors the RMC status field: A=active, anything else void.
	Active    bool
	DataReady bool
}

// RMC field positions (NMEA 0183):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
const rmcMinFields = 8

// ParseRMC decodes one RMC sentence best-effort: missing or malformed
// fields default to empty/zero rather than failing the whole sentence.
// Checksums are deliberately not validated; the logger prefers a slightly
// noisy fix over no fix.
func ParseRMC(sentence string) Fix {
	sentence = strings.TrimSpace(sentence)
	sentence = strings.TrimPrefix(sentence, "$")
	// Drop a trailing checksum so the last field parses clean.
	if star := strings.LastIndexByte(sentence, '*'); star != -1 {
		sentence = sentence[:star]
	}

	f := strings.Split(sentence, ",")
	if len(f) < rmcMinFields {
		return Fix{}
	}

	fix := Fix{
		Lat:       strings.TrimSpace(f[3]),
		NS:        strings.TrimSpace(f[4]),
		Lon:       strings.TrimSpace(f[5]),
		EW:        strings.TrimSpace(f[6]),
		Active:    strings.TrimSpace(f[2]) == "A",
		DataReady: true,
	}
	if kt, err := strconv.ParseFloat(strings.TrimSpace(f[7]), 64); err == nil {
		fix.SpeedKmh = kt * knotsToKmh
	}
	return fix
}
