package domain

import "time"

// PreferenceCategory classifies an accumulated food preference.
type PreferenceCategory string

const (
	CategoryLikes    PreferenceCategory = "likes"
	CategoryDislikes PreferenceCategory = "dislikes"
	CategoryAllergy  PreferenceCategory = "allergy"
	CategoryDietary  PreferenceCategory = "dietary"
	CategoryCuisine  PreferenceCategory = "cuisine_preference"
	CategoryGeneral  PreferenceCategory = "general"
)

// ValidCategory reports whether c is one of the known preference categories.
func ValidCategory(c PreferenceCategory) bool {
	switch c {
	case CategoryLikes, CategoryDislikes, CategoryAllergy, CategoryDietary, CategoryCuisine, CategoryGeneral:
		return true
	}
	return false
}

// Preference is one deduplicated, confidence-scored free-text signal about a
// member's food preferences. Identity is (member, category, detail) up to
// substring containment within the same category: observing "raw fish" when
// "fish" is already stored raises the confidence of the stored row instead of
// inserting a new one.
type Preference struct {
	ID            int64
	MemberID      string
	Category      PreferenceCategory
	Detail        string
	Confidence    float64
	Source        string
	ExtractedFrom string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ConfidenceStep is added on each re-confirmation of an existing preference.
const ConfidenceStep = 0.1

// Reconfirm returns the confidence after one more observation, capped at 1.0.
func Reconfirm(confidence float64) float64 {
	c := confidence + ConfidenceStep
	if c > 1.0 {
		return 1.0
	}
	return c
}
