package zone

import (
	"strings"
)

// GEOIDLength is the length of a census tract GEOID: 2-digit state, 3-digit
// county and 6-digit tract FIPS codes.
const GEOIDLength = 11

// padFIPS left-pads code with zeros to width digits.
func padFIPS(code string, digits int) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < digits {
		code = "0" + code
	}
	return code
}

// TractGEOID combines state, county and tract FIPS codes into an 11-digit
// tract GEOID. Returns "" if any part is missing.
func TractGEOID(state, county, tract string) string {
	s, c, t := padFIPS(state, 2), padFIPS(county, 3), padFIPS(tract, 6)
	if s == "" || c == "" || t == "" {
		return ""
	}
	return s + c + t
}

// NormalizeGEOID restores leading zeros lost when a GEOID was stored as a
// number (e.g. 1001020100 for Alabama).
func NormalizeGEOID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) >= GEOIDLength || !isDigits(id) {
		return id
	}
	return padFIPS(id, GEOIDLength)
}

// AttributesFromGEOID derives tract attributes from the structure of an
// 11-digit GEOID. ok is false when id is not a tract GEOID.
func AttributesFromGEOID(id string) (Attributes, bool) {
	if len(id) != GEOIDLength || !isDigits(id) {
		return Attributes{}, false
	}
	state := id[:2]
	return Attributes{
		State:     StateName(state),
		StateCode: state,
		County:    id[2:5],
		Tract:     id[5:],
	}, true
}

// StateName returns the state or territory name for a 2-digit FIPS code.
func StateName(code string) string {
	return stateNames[padFIPS(code, 2)]
}

// StateFIPS returns the 2-digit FIPS code for a state name or USPS
// abbreviation, case-insensitively.
func StateFIPS(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ""
	}
	if code, ok := stateAbbr[strings.ToUpper(key)]; ok {
		return code
	}
	for code, n := range stateNames {
		if strings.ToLower(n) == key {
			return code
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var stateNames = map[string]string{
	"01": "Alabama", "02": "Alaska", "04": "Arizona", "05": "Arkansas",
	"06": "California", "08": "Colorado", "09": "Connecticut", "10": "Delaware",
	"11": "District of Columbia", "12": "Florida", "13": "Georgia", "15": "Hawaii",
	"16": "Idaho", "17": "Illinois", "18": "Indiana", "19": "Iowa",
	"20": "Kansas", "21": "Kentucky", "22": "Louisiana", "23": "Maine",
	"24": "Maryland", "25": "Massachusetts", "26": "Michigan", "27": "Minnesota",
	"28": "Mississippi", "29": "Missouri", "30": "Montana", "31": "Nebraska",
	"32": "Nevada", "33": "New Hampshire", "34": "New Jersey", "35": "New Mexico",
	"36": "New York", "37": "North Carolina", "38": "North Dakota", "39": "Ohio",
	"40": "Oklahoma", "41": "Oregon", "42": "Pennsylvania", "44": "Rhode Island",
	"45": "South Carolina", "46": "South Dakota", "47": "Tennessee", "48": "Texas",
	"49": "Utah", "50": "Vermont", "51": "Virginia", "53": "Washington",
	"54": "West Virginia", "55": "Wisconsin", "56": "Wyoming",
	"60": "American Samoa", "66": "Guam", "69": "Northern Mariana Islands",
	"72": "Puerto Rico", "78": "U.S. Virgin Islands",
}

var stateAbbr = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06", "CO": "08",
	"CT": "09", "DE": "10", "DC": "11", "FL": "12", "GA": "13", "HI": "15",
	"ID": "16", "IL": "17", "IN": "18", "IA": "19", "KS": "20", "KY": "21",
	"LA": "22", "ME": "23", "MD": "24", "MA": "25", "MI": "26", "MN": "27",
	"MS": "28", "MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38", "OH": "39",
	"OK": "40", "OR": "41", "PA": "42", "RI": "44", "SC": "45", "SD": "46",
	"TN": "47", "TX": "48", "UT": "49", "VT": "50", "VA": "51", "WA": "53",
	"WV": "54", "WI": "55", "WY": "56", "AS": "60", "GU": "66", "MP": "69",
	"PR": "72", "VI": "78",
}
