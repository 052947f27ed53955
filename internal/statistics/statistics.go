// Package statistics derives presentation values from the visited-country
// statistics the backend computes: days spent abroad, continent names and
// flag emojis, plus the country metadata the dev backend serves.
package statistics

import (
	"sort"
	"strings"

	"github.com/aerobless/thereabout/internal/backend"
)

type countryInfo struct {
	name      string
	continent string
}

// countries holds metadata for the countries the dev backend and the
// statistics view care about. Unknown codes fall back to the code itself.
var countries = map[string]countryInfo{
	"AR": {"Argentina", "SA"},
	"AT": {"Austria", "EU"},
	"AU": {"Australia", "OC"},
	"BE": {"Belgium", "EU"},
	"BR": {"Brazil", "SA"},
	"CA": {"Canada", "NA"},
	"CH": {"Switzerland", "EU"},
	"CL": {"Chile", "SA"},
	"CN": {"China", "AS"},
	"CZ": {"Czechia", "EU"},
	"DE": {"Germany", "EU"},
	"DK": {"Denmark", "EU"},
	"EG": {"Egypt", "AF"},
	"ES": {"Spain", "EU"},
	"FI": {"Finland", "EU"},
	"FR": {"France", "EU"},
	"GB": {"United Kingdom", "EU"},
	"GR": {"Greece", "EU"},
	"HR": {"Croatia", "EU"},
	"HU": {"Hungary", "EU"},
	"ID": {"Indonesia", "AS"},
	"IE": {"Ireland", "EU"},
	"IN": {"India", "AS"},
	"IS": {"Iceland", "EU"},
	"IT": {"Italy", "EU"},
	"JP": {"Japan", "AS"},
	"KR": {"South Korea", "AS"},
	"LI": {"Liechtenstein", "EU"},
	"MA": {"Morocco", "AF"},
	"MX": {"Mexico", "NA"},
	"NL": {"Netherlands", "EU"},
	"NO": {"Norway", "EU"},
	"NZ": {"New Zealand", "OC"},
	"PL": {"Poland", "EU"},
	"PT": {"Portugal", "EU"},
	"SE": {"Sweden", "EU"},
	"SG": {"Singapore", "AS"},
	"TH": {"Thailand", "AS"},
	"TR": {"Turkey", "AS"},
	"US": {"United States", "NA"},
	"VN": {"Vietnam", "AS"},
	"ZA": {"South Africa", "AF"},
}

// CountryName returns the display name for an ISO 3166-1 alpha-2 code,
// falling back to the code itself.
func CountryName(iso string) string {
	if info, ok := countries[strings.ToUpper(iso)]; ok {
		return info.name
	}
	return iso
}

// ContinentOf returns the two-letter continent code for a country code,
// or an empty string when the country is unknown.
func ContinentOf(iso string) string {
	return countries[strings.ToUpper(iso)].continent
}

// ContinentName expands a two-letter continent code to its display name.
// Unrecognized codes pass through unchanged.
func ContinentName(code string) string {
	switch code {
	case "EU":
		return "Europe"
	case "NA":
		return "North America"
	case "SA":
		return "South America"
	case "OC":
		return "Oceania"
	case "AS":
		return "Asia"
	case "AF":
		return "Africa"
	case "AN":
		return "Antarctica"
	default:
		return code
	}
}

// FlagEmoji builds the flag emoji for an ISO 3166-1 alpha-2 code from
// regional indicator symbols. Codes that are not two letters yield "".
func FlagEmoji(iso string) string {
	iso = strings.ToUpper(iso)
	if len(iso) != 2 {
		return ""
	}
	flag := make([]rune, 0, 2)
	for _, c := range iso {
		if c < 'A' || c > 'Z' {
			return ""
		}
		flag = append(flag, 0x1F1E6+c-'A')
	}
	return string(flag)
}

// SortByDays orders country statistics by days spent, most first.
func SortByDays(stats []backend.CountryStatistic) {
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].NumberOfDaysSpent > stats[j].NumberOfDaysSpent
	})
}

// DaysAbroad sums the days of all countries except those tied for the
// most days spent. The country with the most days counts as home.
func DaysAbroad(stats []backend.CountryStatistic) int {
	if len(stats) == 0 {
		return 0
	}
	maxDays := 0
	for _, s := range stats {
		if s.NumberOfDaysSpent > maxDays {
			maxDays = s.NumberOfDaysSpent
		}
	}
	total := 0
	for _, s := range stats {
		if s.NumberOfDaysSpent != maxDays {
			total += s.NumberOfDaysSpent
		}
	}
	return total
}
