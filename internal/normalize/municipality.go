package normalize

import (
	"regexp"
	"strings"
)

var municipalityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Prefeitura|C[âa]mara|Autarquia)\s+(?:Municipal|Munic[íi]pal)\s+de\s+(.+?)(?:\s*-\s*[A-Za-z]{2})?$`),
	regexp.MustCompile(`(?i)(?:Municipal|Munic[íi]pio)\s+(?:de|do|da|dos|das)\s+(.+?)(?:\s*/|\s+-\s|$)`),
}

var (
	ufSlashPattern = regexp.MustCompile(`/([A-Z]{2})(?:\s|$|[.,)])`)
	ufDashPattern  = regexp.MustCompile(`\s-\s*([A-Z]{2})\s*$`)
	deSplitPattern = regexp.MustCompile(`(?i)\s+de\s+`)
)

var federativeUnits = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// IsFederativeUnit reports whether code is one of the 27 state codes.
func IsFederativeUnit(code string) bool {
	_, ok := federativeUnits[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// MunicipalityFromBody extracts a municipality from an issuing-body name.
// It returns "" when no administrative naming pattern applies.
func MunicipalityFromBody(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	for _, pattern := range municipalityPatterns {
		if m := pattern.FindStringSubmatch(body); len(m) > 1 {
			if city := cleanMunicipality(m[1]); city != "" {
				return city
			}
		}
	}

	folded := Fold(body)
	if !strings.Contains(folded, "munic") && !strings.Contains(folded, "prefeitura") && !strings.Contains(folded, "camara") {
		return ""
	}
	parts := deSplitPattern.Split(body, -1)
	if len(parts) >= 3 {
		return cleanMunicipality(parts[len(parts)-1])
	}
	return ""
}

// RegionFromText extracts a state code from "City/UF" or "Body - UF" suffixes.
func RegionFromText(texts ...string) string {
	for _, text := range texts {
		for _, pattern := range []*regexp.Regexp{ufSlashPattern, ufDashPattern} {
			for _, m := range pattern.FindAllStringSubmatch(text, -1) {
				if IsFederativeUnit(m[1]) {
					return m[1]
				}
			}
		}
	}
	return ""
}

func cleanMunicipality(city string) string {
	city = strings.TrimSpace(city)
	for _, sep := range []string{"/", " -", "- "} {
		if i := strings.Index(city, sep); i > 0 {
			city = strings.TrimSpace(city[:i])
		}
	}
	return strings.Trim(city, " .,;")
}
