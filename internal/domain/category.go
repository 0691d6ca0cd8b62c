package domain

import (
	"strings"
	"unicode"
)

// Category is the spending bucket a transaction belongs to.
// The underlying string is the display form shown to users and written to the ledger.
type Category string

const (
	CategoryFood                   Category = "Food"
	CategoryTransport              Category = "Transport"
	CategoryLifestyleEntertainment Category = "Lifestyle & Entertainment"
	CategoryRent                   Category = "Rent"
	CategoryUtilities              Category = "Utilities"
	CategoryOthers                 Category = "Others"
)

// DefaultCategory is what Classify returns when the input matches no member.
const DefaultCategory = CategoryOthers

var categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryLifestyleEntertainment,
	CategoryRent,
	CategoryUtilities,
	CategoryOthers,
}

// categoryKeys maps the normalized member name to its category.
var categoryKeys = map[string]Category{
	"food":                   CategoryFood,
	"transport":              CategoryTransport,
	"lifestyleentertainment": CategoryLifestyleEntertainment,
	"rent":                   CategoryRent,
	"utilities":              CategoryUtilities,
	"others":                 CategoryOthers,
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Classify maps free text to a Category. Matching ignores case, '&', '_'
// and whitespace, so "FOOD", "lifestyle & entertainment" and
// "Lifestyle_Entertainment" all resolve. Anything else is DefaultCategory.
func Classify(text string) Category {
	if c, ok := categoryKeys[normalizeCategory(text)]; ok {
		return c
	}
	return DefaultCategory
}

func normalizeCategory(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if r == '&' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String returns the display form.
func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails:
// unknown text becomes DefaultCategory.
func (c *Category) UnmarshalText(text []byte) error {
	*c = Classify(string(text))
	return nil
}
