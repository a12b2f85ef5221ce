package mapper

import "sqlmapper/internal/metadata"

type builtin struct {
	name   string
	kind   MethodKind
	params func(e *metadata.Entity) []ParameterDefinition
}

func entityParam(e *metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "entity", Type: e.Name, Kind: ParamEntity}}
}

func listParam(name string) func(e *metadata.Entity) []ParameterDefinition {
	return func(e *metadata.Entity) []ParameterDefinition {
		return []ParameterDefinition{{Name: name, Type: "[]" + keyType(e), Kind: ParamList}}
	}
}

func entityListParam(e *metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "list", Type: "[]" + e.Name, Kind: ParamList}}
}

func idParam(e *metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "id", Type: keyType(e), Kind: ParamValue}}
}

func sortParam(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "sort", Type: "Sort", Kind: ParamSort}}
}

func pageParam(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "page", Type: "Page", Kind: ParamPage}}
}

func pageSortParams(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{
		{Name: "page", Type: "Page", Kind: ParamPage},
		{Name: "sort", Type: "Sort", Kind: ParamSort},
	}
}

func specParam(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "specification", Type: "Specification", Kind: ParamSpecification}}
}

func pageSpecParams(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{
		{Name: "page", Type: "Page", Kind: ParamPage},
		{Name: "specification", Type: "Specification", Kind: ParamSpecification},
	}
}

func updateSpecParam(*metadata.Entity) []ParameterDefinition {
	return []ParameterDefinition{{Name: "specification", Type: "UpdateSpecification", Kind: ParamUpdateSpecification}}
}

// keyType is the primary-key value type; composite keys use the id class.
func keyType(e *metadata.Entity) string {
	if pk := e.PrimaryColumn(); pk != nil {
		return pk.Type
	}
	return e.Name + "Key"
}

// builtins is the CRUD catalogue every mapper declares unless disabled.
var builtins = []builtin{
	{"insert", KindInsert, entityParam},
	{"insertSelective", KindInsertSelective, entityParam},
	{"insertBatch", KindInsertBatch, entityListParam},
	{"update", KindUpdate, entityParam},
	{"updateSelective", KindUpdateSelective, entityParam},
	{"updateBatch", KindUpdateBatch, entityListParam},
	{"deleteById", KindDeleteByID, idParam},
	{"deleteBatch", KindDeleteBatch, listParam("ids")},
	{"findById", KindFindByID, idParam},
	{"existsById", KindExistsByID, idParam},
	{"findAll", KindFindAll, sortParam},
	{"findAllById", KindFindAllByID, listParam("ids")},
	{"findAllPage", KindFindAllPage, pageParam},
	{"findAllPageSort", KindFindAllPageSort, pageSortParams},
	{"findAllSpecification", KindFindSpecification, specParam},
	{"findPageSpecification", KindFindSpecification, pageSpecParams},
	{"countSpecification", KindCountSpecification, specParam},
	{"updateSpecification", KindUpdateSpecification, updateSpecParam},
}

// BuiltinNames lists the catalogue method names in declaration order.
func BuiltinNames() []string {
	names := make([]string, len(builtins))
	for i, b := range builtins {
		names[i] = b.name
	}
	return names
}

func builtinMethods(namespace string, e *metadata.Entity) []*MethodDefinition {
	out := make([]*MethodDefinition, 0, len(builtins))
	for _, b := range builtins {
		m := newMethodDefinition(namespace, b.name, b.kind, e, b.params(e))
		m.ReturnType = builtinReturnType(b.kind, e)
		out = append(out, m)
	}
	return out
}

func builtinReturnType(kind MethodKind, e *metadata.Entity) string {
	switch kind {
	case KindFindByID:
		return e.Name
	case KindExistsByID:
		return "bool"
	case KindCountSpecification:
		return "int64"
	case KindFindAll, KindFindAllByID, KindFindAllPage, KindFindAllPageSort, KindFindSpecification:
		return "[]" + e.Name
	default:
		return "int64"
	}
}
