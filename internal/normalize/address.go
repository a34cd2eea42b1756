package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Parenthetical annotations anywhere in the string, e.g. "(stck 401)".
var reParenthetical = regexp.MustCompile(`\([^)]*\)`)

// "AT" followed by a digit-led token, e.g. "Lot 101 at 7200 Murrel Drive".
var reAtNumber = regexp.MustCompile(`\bAT\s+(\d)`)

// Lot/tract/phase/unit/stock markers with an optional alphanumeric
// suffix, e.g. "LOT 12A", "STCK 401", "PHASE 2".
var reLotMarker = regexp.MustCompile(`\b(LOT|LOTS|TRACT|PHASE|UNIT|STCK|STOCK)\b(\s+[A-Z]?\d[A-Z0-9-]*)?`)

var reVacant = regexp.MustCompile(`\bVACANT\b`)

// Street-type and directional abbreviations applied as whole-word
// substitutions after cleanup.
var abbreviations = map[string]string{
	"STREET":    "ST",
	"ROAD":      "RD",
	"DRIVE":     "DR",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"LANE":      "LN",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"PLACE":     "PL",
	"TRAIL":     "TRL",
	"TERRACE":   "TER",
	"HIGHWAY":   "HWY",
	"PARKWAY":   "PKWY",
	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
	"NORTHEAST": "NE",
	"NORTHWEST": "NW",
	"SOUTHEAST": "SE",
	"SOUTHWEST": "SW",
}

// Canonicalize converts a raw free-text address into its canonical
// matching form: uppercase, noise markers stripped, subdivision names
// ahead of the street number discarded, punctuation collapsed, and
// street-type/directional words abbreviated. An empty result means no
// usable address remained.
//
// Canonicalize is idempotent: applying it to its own output yields the
// same string.
func Canonicalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	// Parenthetical annotations carry lot/stock notes, never the
	// street address.
	s = reParenthetical.ReplaceAllString(s, " ")

	// "Starnes Creek lot 101 at 7200 Murrel Drive" - everything before
	// and including "AT" is subdivision/lot preamble.
	if loc := reAtNumber.FindStringSubmatchIndex(s); loc != nil {
		s = s[loc[2]:]
	}

	// Lot/tract/phase/unit/stock markers and their numbers.
	s = reLotMarker.ReplaceAllString(s, " ")

	// "VACANT" is a status note, not an address component.
	s = reVacant.ReplaceAllString(s, " ")

	// If a digit-led street number exists, drop whatever precedes it;
	// prepended subdivision or property names are noise. Addresses with
	// no street number (rural route names) pass through as-is.
	fields := strings.Fields(s)
	for i, tok := range fields {
		if unicode.IsDigit(rune(tok[0])) {
			fields = fields[i:]
			break
		}
	}
	s = strings.Join(fields, " ")

	// Collapse punctuation to spaces, then collapse whitespace.
	b := strings.Builder{}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	// Whole-word abbreviation pass.
	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		if abbr, ok := abbreviations[tok]; ok {
			tokens[i] = abbr
		}
	}

	return strings.Join(tokens, " ")
}
