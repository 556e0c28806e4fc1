package models

import "slices"

// Group is the denormalized group record. Membership checks go through the
// group:{id}:members and group:{id}:admins sets which are written together
// with this record.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	Members     []string `json:"members"`
	Admins      []string `json:"admins"`
	CreatedAt   int64    `json:"createdAt"`
}

func (g Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

func (g Group) HasAdmin(userID string) bool {
	return slices.Contains(g.Admins, userID)
}

// Without returns a copy of the group with userID stripped from members and admins.
func (g Group) Without(userID string) Group {
	keep := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != userID {
				out = append(out, id)
			}
		}
		return out
	}
	g.Members = keep(g.Members)
	g.Admins = keep(g.Admins)
	return g
}

// WithAdmin returns a copy of the group with userID appended to admins.
func (g Group) WithAdmin(userID string) Group {
	admins := make([]string, 0, len(g.Admins)+1)
	admins = append(admins, g.Admins...)
	g.Admins = append(admins, userID)
	return g
}
