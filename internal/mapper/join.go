package mapper

import (
	"strings"

	"sqlmapper/internal/metadata"
)

// JoinStatement attaches a relation to an owner method: its LEFT JOIN
// fragment, its selected columns and the finder whose result map nests the
// joined rows.
type JoinStatement struct {
	Relation *metadata.Relation
	Finder   *MethodDefinition
}

// Property is the owner property the joined rows populate.
func (j *JoinStatement) Property() string {
	return j.Relation.Property
}

// Alias is the table alias of the joined target.
func (j *JoinStatement) Alias() string {
	return j.Relation.Alias
}

// LinkAlias is the alias of the link table of a many-to-many join.
func (j *JoinStatement) LinkAlias() string {
	return j.Relation.Alias + "_0"
}

// NestedSelect is the statement id of the finder.
func (j *JoinStatement) NestedSelect() string {
	return j.Finder.StatementID()
}

// NestedResultMap is the result map id of the finder.
func (j *JoinStatement) NestedResultMap() string {
	return j.Finder.StatementID() + "ResultMap"
}

// DeclaredType is the declared type of the owner property: the collection type
// for to-many relations, the target entity otherwise.
func (j *JoinStatement) DeclaredType() string {
	if j.Relation.Collection() {
		return j.Relation.CollectionType
	}
	return j.Relation.TargetName
}

// Columns returns the joined columns under their statement-unique names.
func (j *JoinStatement) Columns() []ColumnDefinition {
	return j.Finder.Columns
}

// ColumnList renders the joined columns for a select list.
// Example: "r_2.id AS id_1, r_2.role_name"
func (j *JoinStatement) ColumnList() string {
	alias := j.Alias()
	parts := make([]string, len(j.Finder.Columns))
	for i, c := range j.Finder.Columns {
		if c.Column == c.OriginalColumn {
			parts[i] = alias + "." + c.OriginalColumn
		} else {
			parts[i] = alias + "." + c.OriginalColumn + " AS " + c.Column
		}
	}
	return strings.Join(parts, ", ")
}

// LeftJoin renders the LEFT JOIN fragment relative to the owner's alias.
// Many-to-many joins wrap the link table and the target in one join unit.
func (j *JoinStatement) LeftJoin(mainAlias string) string {
	rel := j.Relation
	alias := j.Alias()
	if rel.HasLinkTable() {
		link := j.LinkAlias()
		return "LEFT JOIN ( " + rel.LinkTable + " " + link +
			" JOIN " + rel.TableName + " " + alias +
			" ON " + alias + "." + rel.InverseReferencedColumnName + " = " + link + "." + rel.InverseColumnName +
			" ) ON " + mainAlias + "." + rel.ReferencedColumnName + " = " + link + "." + rel.ColumnName
	}
	return "LEFT JOIN " + rel.TableName + " " + alias +
		" ON " + mainAlias + "." + rel.ColumnName + " = " + alias + "." + rel.ReferencedColumnName
}
