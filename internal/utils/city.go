package utils

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)

// SanitizeCityForRoom turns a city string into a deterministic room-name
// friendly slug. Example: "  New   York " -> "new-york". Empty or
// whitespace-only input yields the empty slug; callers must reject it
// before joining a room.
func SanitizeCityForRoom(city string) string {
	fields := strings.Fields(strings.ToLower(city))
	slug := strings.Join(fields, "-")
	return nonSlugChars.ReplaceAllString(slug, "")
}

// NormalizeCityForMatch normalizes a city string for exact matching: trims
// and collapses repeated whitespace, keeps spaces and case.
func NormalizeCityForMatch(city string) string {
	return strings.Join(strings.Fields(city), " ")
}

// CityRoomName returns the city room identifier for a raw city string.
func CityRoomName(city string) string {
	return "city-" + SanitizeCityForRoom(city)
}

// RequestRoomName returns the chat room identifier for a request id.
func RequestRoomName(requestID string) string {
	return "request-" + requestID
}

// BuildCityExactMatchRegex builds a case-insensitive, exact-match pattern
// for a city string. The input is escaped before embedding, so regex
// metacharacters in user input cannot alter the query.
func BuildCityExactMatchRegex(city string) primitive.Regex {
	normalized := NormalizeCityForMatch(city)
	return primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(normalized) + "$",
		Options: "i",
	}
}
