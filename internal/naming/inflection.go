package naming

import (
	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural table word for an entity, e.g. "role" ->
// "roles". Entries of plural_overrides win over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if plural, ok := n.config.PluralOverrides[word]; ok {
		return plural
	}
	return inflection.Plural(word)
}

// Singularize returns the element name of a collection property, e.g.
// "roles" -> "role", used for default link-table columns. Entries of
// singular_overrides win over the inflection rules.
func (n *Namer) Singularize(property string) string {
	if singular, ok := n.config.SingularOverrides[property]; ok {
		return singular
	}
	return inflection.Singular(property)
}
