package matching

import (
	"strings"

	"anonchat-backend/internal/storage"
)

// Incompatible is returned by Score when the mutual gender-preference gate
// fails. It is an absolute disqualifier, not a low score: a score of 0 is
// still a valid match.
const Incompatible = -1

// Score computes the compatibility score between two profiles:
//
//	+5 per shared interest
//	+3 if age difference <= 5, +1 if <= 10
//	+2 per shared language
//	+1 for identical education level
//
// Symmetric under argument swap and free of side effects.
func Score(a, b *storage.UserProfile) int {
	if !genderCompatible(a, b) {
		return Incompatible
	}

	score := 0

	score += 5 * countShared(a.Interests, b.Interests)

	ageDiff := a.Age - b.Age
	if ageDiff < 0 {
		ageDiff = -ageDiff
	}
	switch {
	case ageDiff <= 5:
		score += 3
	case ageDiff <= 10:
		score += 1
	}

	score += 2 * countShared(a.Languages, b.Languages)

	if a.Education == b.Education {
		score++
	}

	return score
}

// genderCompatible requires the preference to hold in both directions.
func genderCompatible(a, b *storage.UserProfile) bool {
	return wantsGender(a.PreferredGender, b.Gender) && wantsGender(b.PreferredGender, a.Gender)
}

func wantsGender(preference, gender string) bool {
	if preference == storage.PreferenceAny {
		return true
	}
	return strings.TrimSuffix(preference, " only") == gender
}

func countShared(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	shared := 0
	for _, item := range b {
		if _, ok := set[item]; ok {
			shared++
		}
	}
	return shared
}
