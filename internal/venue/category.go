package venue

import (
	"strings"
)

// Category is the primary kind of a venue.
type Category string

// Categories. Other is the explicit unclassified variant.
const (
	CategoryBar        Category = "BAR"
	CategoryClub       Category = "CLUB"
	CategoryTheatre    Category = "THEATRE"
	CategoryMusicVenue Category = "MUSIC_VENUE"
	CategoryComedy     Category = "COMEDY"
	CategoryGallery    Category = "GALLERY"
	CategoryMuseum     Category = "MUSEUM"
	CategoryStudio     Category = "STUDIO"
	CategoryCinema     Category = "CINEMA"
	CategoryPark       Category = "PARK"
	CategoryRestaurant Category = "RESTAURANT"
	CategoryCafe       Category = "CAFE"
	CategoryCommunity  Category = "COMMUNITY"
	CategorySports     Category = "SPORTS"
	CategoryOther      Category = "OTHER"
)

// Unclassified is the category assigned when no tag maps to a known kind.
const Unclassified = CategoryOther

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBar, CategoryClub, CategoryTheatre, CategoryMusicVenue, CategoryComedy,
	CategoryGallery, CategoryMuseum, CategoryStudio, CategoryCinema, CategoryPark,
	CategoryRestaurant, CategoryCafe, CategoryCommunity, CategorySports, CategoryOther,
}

// IsClassified reports whether c is a known, non-default category.
func (c Category) IsClassified() bool {
	return c != "" && c != CategoryOther
}

// ParseCategory converts a stored category string, defaulting to Unclassified.
func ParseCategory(s string) Category {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, c := range AllCategories {
		if string(c) == s {
			return c
		}
	}
	return Unclassified
}

// categoryRule maps a tag substring to a category. Rules are checked in
// order; the first hit wins, so narrow keywords come before broad ones.
type categoryRule struct {
	needle   string
	category Category
}

var categoryRules = []categoryRule{
	{"parking", CategoryOther},
	{"sports_bar", CategoryBar},
	{"comedy", CategoryComedy},
	{"cinema", CategoryCinema},
	{"movie", CategoryCinema},
	{"stadium", CategorySports},
	{"sports", CategorySports},
	{"bowling", CategorySports},
	{"climbing", CategorySports},
	{"fitness", CategorySports},
	{"gym", CategorySports},
	{"golf", CategorySports},
	{"ice_rink", CategorySports},
	{"arena", CategorySports},
	{"studio", CategoryStudio},
	{"yoga", CategoryStudio},
	{"pottery", CategoryStudio},
	{"workshop", CategoryStudio},
	{"jazz", CategoryMusicVenue},
	{"music", CategoryMusicVenue},
	{"concert", CategoryMusicVenue},
	{"nightclub", CategoryClub},
	{"night_club", CategoryClub},
	{"club", CategoryClub},
	{"dance", CategoryClub},
	{"disco", CategoryClub},
	{"theatre", CategoryTheatre},
	{"theater", CategoryTheatre},
	{"playhouse", CategoryTheatre},
	{"opera", CategoryTheatre},
	{"performing_arts", CategoryTheatre},
	{"arts_centre", CategoryTheatre},
	{"gallery", CategoryGallery},
	{"museum", CategoryMuseum},
	{"restaurant", CategoryRestaurant},
	{"steak", CategoryRestaurant},
	{"bbq", CategoryRestaurant},
	{"barbecue", CategoryRestaurant},
	{"bistro", CategoryRestaurant},
	{"diner", CategoryRestaurant},
	{"eatery", CategoryRestaurant},
	{"food", CategoryRestaurant},
	{"bar", CategoryBar},
	{"pub", CategoryBar},
	{"brewery", CategoryBar},
	{"winery", CategoryBar},
	{"wine", CategoryBar},
	{"beer", CategoryBar},
	{"cocktail", CategoryBar},
	{"tavern", CategoryBar},
	{"lounge", CategoryBar},
	{"cafe", CategoryCafe},
	{"coffee", CategoryCafe},
	{"tea", CategoryCafe},
	{"bakery", CategoryCafe},
	{"park", CategoryPark},
	{"garden", CategoryPark},
	{"playground", CategoryPark},
	{"nature_reserve", CategoryPark},
	{"beach", CategoryPark},
	{"community", CategoryCommunity},
	{"library", CategoryCommunity},
	{"cultural", CategoryCommunity},
	{"social_centre", CategoryCommunity},
}

// NormalizeTag lowercases a raw source tag and joins words with underscores
// so "Night Club" and "night-club" both read as "night_club".
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(tag)
	return tag
}

// MapCategory maps one raw tag to a category. It is total: unknown tags map
// to Unclassified.
func MapCategory(tag string) Category {
	tag = NormalizeTag(tag)
	if tag == "" {
		return Unclassified
	}
	for _, r := range categoryRules {
		if strings.Contains(tag, r.needle) {
			return r.category
		}
	}
	return Unclassified
}

// ResolveCategory picks the primary category from an ordered tag list. The
// first tag that maps to a classified category wins; every other distinct
// tag is returned as a subcategory.
func ResolveCategory(tags []string) (Category, []string) {
	primary := Unclassified
	primaryTag := ""
	for _, t := range tags {
		if c := MapCategory(t); c.IsClassified() {
			primary = c
			primaryTag = NormalizeTag(t)
			break
		}
	}

	seen := make(map[string]bool, len(tags))
	var subs []string
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || n == primaryTag || seen[n] {
			continue
		}
		seen[n] = true
		subs = append(subs, n)
	}
	return primary, subs
}
