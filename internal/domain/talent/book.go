package talent

import (
	"sort"
	"time"

	"github.com/okian/boxoffice/internal/domain/model"
)

// Role scopes a person's history.
type Role string

// Roles with separate histories.
const (
	RoleDirector Role = "director"
	RoleCast     Role = "cast"
)

// ReleaseScores are the aggregated talent scores of one release.
type ReleaseScores struct {
	Director Score
	Cast     Score
}

// Entry is one outcome in a Book, in the flat form stored with a model.
type Entry struct {
	Role      Role      `json:"role"`
	PersonID  string    `json:"person_id"`
	ReleaseID string    `json:"release_id"`
	Date      time.Time `json:"date"`
	Revenue   float64   `json:"revenue"`
}

// Book is the frozen talent history used at inference: one History per
// person and role. It is built once and then only read.
type Book struct {
	policy Policy
	people map[Role]map[string]*History
}

// NewBook returns an empty book scoring under p.
func NewBook(p Policy) *Book {
	return &Book{
		policy: p,
		people: map[Role]map[string]*History{RoleDirector: {}, RoleCast: {}},
	}
}

// BuildBook records every known outcome of releases under its role members.
func BuildBook(releases []model.NormalizedRelease, p Policy) *Book {
	b := NewBook(p)
	for _, r := range releases {
		c := Credit{ReleaseID: r.ID, Date: r.ReleaseDate, Revenue: r.RevenueAdj}
		for _, role := range []Role{RoleDirector, RoleCast} {
			for _, id := range Members(r.Release, role, p) {
				b.Add(role, id, c)
			}
		}
	}
	return b
}

// NewBookFromEntries rebuilds a book from its stored entries.
func NewBookFromEntries(p Policy, entries []Entry) *Book {
	b := NewBook(p)
	for _, e := range entries {
		rev := e.Revenue
		b.Add(e.Role, e.PersonID, Credit{ReleaseID: e.ReleaseID, Date: e.Date, Revenue: &rev})
	}
	return b
}

// Policy returns the scoring policy.
func (b *Book) Policy() Policy { return b.policy }

// Add records c under person in role.
func (b *Book) Add(role Role, personID string, c Credit) {
	byPerson, ok := b.people[role]
	if !ok {
		byPerson = map[string]*History{}
		b.people[role] = byPerson
	}
	h, ok := byPerson[personID]
	if !ok {
		h = &History{}
		byPerson[personID] = h
	}
	h.Add(c)
}

// People is the number of persons with a history in role.
func (b *Book) People(role Role) int { return len(b.people[role]) }

// Score returns person's score in role for a release dated at.
func (b *Book) Score(role Role, personID string, at time.Time) Score {
	h, ok := b.people[role][personID]
	if !ok {
		return NoHistory
	}
	return h.ScoreAt(at, b.policy)
}

// ReleaseScores aggregates the credited members of r for a release dated at
// its own release date.
func (b *Book) ReleaseScores(r model.Release) ReleaseScores {
	var directors, cast []Score
	for _, id := range Members(r, RoleDirector, b.policy) {
		directors = append(directors, b.Score(RoleDirector, id, r.ReleaseDate))
	}
	for _, id := range Members(r, RoleCast, b.policy) {
		cast = append(cast, b.Score(RoleCast, id, r.ReleaseDate))
	}
	return ReleaseScores{Director: Mean(directors...), Cast: combineCast(b.policy, cast)}
}

// Entries flattens the book in (role, person, date, release) order.
func (b *Book) Entries() []Entry {
	var out []Entry
	for _, role := range []Role{RoleDirector, RoleCast} {
		ids := make([]string, 0, len(b.people[role]))
		for id := range b.people[role] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, c := range b.people[role][id].Credits() {
				out = append(out, Entry{Role: role, PersonID: id, ReleaseID: c.ReleaseID, Date: c.Date, Revenue: *c.Revenue})
			}
		}
	}
	return out
}

// Members lists the person IDs of r that build a history in role: every
// director, or the top billed cast up to the policy depth. Repeats are dropped.
func Members(r model.Release, role Role, p Policy) []string {
	var people []model.Person
	switch role {
	case RoleDirector:
		people = r.Directors
	case RoleCast:
		people = r.Cast
		if depth := p.CastDepth(); len(people) > depth {
			people = people[:depth]
		}
	}
	out := make([]string, 0, len(people))
	seen := make(map[string]struct{}, len(people))
	for _, person := range people {
		if person.ID == "" {
			continue
		}
		if _, dup := seen[person.ID]; dup {
			continue
		}
		seen[person.ID] = struct{}{}
		out = append(out, person.ID)
	}
	return out
}

// combineCast applies the cast policy to member scores given in billing order.
func combineCast(p Policy, members []Score) Score {
	if p.Cast == CastLead {
		if len(members) == 0 {
			return NoHistory
		}
		return members[0]
	}
	return Mean(members...)
}
