package graph

import "github.com/kalambet/artribune/internal/storage"

// Category is a relationship bucket of a profile.
type Category string

const (
	Venues            Category = "venues"
	Collaborators     Category = "collaborators"
	ExhibitionsEvents Category = "exhibitions_events"
	FeaturedArtists   Category = "featured_artists"
	EventsExhibitions Category = "events_exhibitions"
)

// Lens is the classification table for one kind of profile: which category
// a co-occurring entity lands in, by tagged type or by the metadata list it
// was found in. Types and lists without an entry are ignored.
type Lens struct {
	Name       string
	Categories []Category
	ByType     map[storage.EntityType]Category
	ByMetadata map[string]Category
}

// ArtistLens builds artist profiles.
var ArtistLens = Lens{
	Name:       "artist",
	Categories: []Category{Venues, Collaborators, ExhibitionsEvents},
	ByType: map[storage.EntityType]Category{
		storage.EntityOrganization: Venues,
		storage.EntityPerson:       Collaborators,
		storage.EntityEvent:        ExhibitionsEvents,
	},
	ByMetadata: map[string]Category{
		"venues":        Venues,
		"organizations": Venues,
		"artists":       Collaborators,
		"events":        ExhibitionsEvents,
	},
}

// VenueLens builds venue profiles.
var VenueLens = Lens{
	Name:       "venue",
	Categories: []Category{FeaturedArtists, EventsExhibitions},
	ByType: map[storage.EntityType]Category{
		storage.EntityPerson: FeaturedArtists,
		storage.EntityEvent:  EventsExhibitions,
	},
	ByMetadata: map[string]Category{
		"artists": FeaturedArtists,
		"events":  EventsExhibitions,
	},
}
