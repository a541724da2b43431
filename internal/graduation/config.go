package graduation

import "github.com/fyrsmithlabs/patternd/internal/pattern"

// Config allows per-hop criteria overrides, keyed by the pattern's current
// level. A zero-valued hop keeps its default.
type Config struct {
	Observation Criteria `koanf:"observation"`
	User        Criteria `koanf:"user"`
	Project     Criteria `koanf:"project"`
	Org         Criteria `koanf:"org"`
	CrossOrg    Criteria `koanf:"cross_org"`
}

// Table materializes the criteria lookup, falling back to DefaultCriteria
// for hops left unconfigured.
func (c Config) Table() map[pattern.Level]Criteria {
	table := DefaultCriteria()
	overrides := map[pattern.Level]Criteria{
		pattern.LevelObservation: c.Observation,
		pattern.LevelUser:        c.User,
		pattern.LevelProject:     c.Project,
		pattern.LevelOrg:         c.Org,
		pattern.LevelCrossOrg:    c.CrossOrg,
	}
	for level, criteria := range overrides {
		if criteria != (Criteria{}) {
			table[level] = criteria
		}
	}
	return table
}
