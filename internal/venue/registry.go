// Package venue matches event location text against a curated venue registry
// and enriches events with venue details, falling back to a paid places API
// under a daily budget.
package venue

import (
	"time"

	"github.com/urbanpulse/event-harvester/internal/model"
)

// Registry holds the curated venues, indexed for exact and alias lookup.
type Registry struct {
	venues  []model.RegisteredVenue
	byName  map[string]*model.RegisteredVenue
	byAlias map[string]*model.RegisteredVenue
}

// NewRegistry indexes the given venues. Names and aliases are stored under
// their canonical normalized form.
func NewRegistry(venues []model.RegisteredVenue) *Registry {
	r := &Registry{
		venues:  venues,
		byName:  make(map[string]*model.RegisteredVenue, len(venues)),
		byAlias: make(map[string]*model.RegisteredVenue),
	}
	for i := range r.venues {
		v := &r.venues[i]
		r.byName[normalizeName(v.Name)] = v
		for _, alias := range v.Aliases {
			r.byAlias[normalizeName(alias)] = v
		}
	}
	return r
}

// Venues returns the indexed venues.
func (r *Registry) Venues() []model.RegisteredVenue { return r.venues }

// DefaultRegistry returns the built-in Amsterdam venue set.
func DefaultRegistry() *Registry { return NewRegistry(defaultVenues) }

var defaultVenues = []model.RegisteredVenue{
	{
		Name:      "Paradiso",
		Aliases:   []string{"Paradiso Amsterdam", "Paradiso Grote Zaal"},
		Lat:       52.3622,
		Lng:       4.8838,
		Category:  model.CategoryMusic,
		Phone:     "+31 20 626 4521",
		Website:   "https://www.paradiso.nl",
		PriceTier: 2,
		Hours: &model.WeekHours{Days: map[time.Weekday]model.DayHours{
			time.Thursday: {Open: "19:00", Close: "01:00", ClosesNextDay: true},
			time.Friday:   {Open: "19:00", Close: "04:00", ClosesNextDay: true},
			time.Saturday: {Open: "19:00", Close: "04:00", ClosesNextDay: true},
		}},
	},
	{
		Name:      "Melkweg",
		Aliases:   []string{"Melkweg Amsterdam", "De Melkweg"},
		Lat:       52.3646,
		Lng:       4.8812,
		Category:  model.CategoryMusic,
		Website:   "https://www.melkweg.nl",
		PriceTier: 2,
	},
	{
		Name:      "Johan Cruijff ArenA",
		Aliases:   []string{"Amsterdam ArenA", "Johan Cruyff Arena"},
		Lat:       52.3143,
		Lng:       4.9415,
		Category:  model.CategorySports,
		Website:   "https://www.johancruijffarena.nl",
		PriceTier: 3,
	},
	{
		Name:      "Concertgebouw",
		Aliases:   []string{"Het Concertgebouw", "Royal Concertgebouw"},
		Lat:       52.3564,
		Lng:       4.8790,
		Category:  model.CategoryMusic,
		Phone:     "+31 20 573 0573",
		Website:   "https://www.concertgebouw.nl",
		PriceTier: 3,
	},
	{
		Name:      "Westergas",
		Aliases:   []string{"Westergasfabriek", "Westerpark"},
		Lat:       52.3861,
		Lng:       4.8693,
		Category:  model.CategoryCommunity,
		Website:   "https://www.westergas.nl",
		PriceTier: 2,
	},
	{
		Name:      "De Hallen",
		Aliases:   []string{"De Hallen Amsterdam", "Foodhallen"},
		Lat:       52.3667,
		Lng:       4.8616,
		Category:  model.CategoryFood,
		Website:   "https://dehallen-amsterdam.nl",
		PriceTier: 2,
	},
	{
		Name:      "Stedelijk Museum",
		Aliases:   []string{"Stedelijk", "Stedelijk Museum Amsterdam"},
		Lat:       52.3581,
		Lng:       4.8798,
		Category:  model.CategoryArts,
		Website:   "https://www.stedelijk.nl",
		PriceTier: 2,
	},
	{
		Name:      "Ziggo Dome",
		Lat:       52.3132,
		Lng:       4.9371,
		Category:  model.CategoryMusic,
		Website:   "https://www.ziggodome.nl",
		PriceTier: 3,
	},
	{
		Name:      "Tolhuistuin",
		Aliases:   []string{"Paradiso Noord"},
		Lat:       52.3843,
		Lng:       4.9031,
		Category:  model.CategoryCommunity,
		Website:   "https://tolhuistuin.nl",
		PriceTier: 1,
	},
	{
		Name:     "Museumplein",
		Lat:      52.3579,
		Lng:      4.8816,
		Category: model.CategoryCommunity,
	},
}
