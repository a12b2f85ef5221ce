package mapper

import (
	"fmt"
	"log/slog"
	"strings"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
)

// Declaration is a mapper as declared in a mapping file or in code.
type Declaration struct {
	Namespace  string
	Entity     string
	NoBuiltins bool
	Methods    []MethodDeclaration
}

// MethodDeclaration declares one mapper method.
type MethodDeclaration struct {
	Name       string
	Params     []ParameterDeclaration
	ReturnType string
	IfTest     IfTest
	// SQL marks a hand-written statement compiled verbatim.
	SQL string
}

// ParameterDeclaration declares one method parameter.
type ParameterDeclaration struct {
	Name   string
	Type   string
	Kind   ParameterKind
	IfTest IfTest
}

// Registry holds the mapper definitions of every namespace.
type Registry struct {
	meta     *metadata.Registry
	namer    *naming.Namer
	logger   *slog.Logger
	mappers  map[string]*MapperDefinition
	byEntity map[string]*MapperDefinition
	order    []string
	joins    map[*metadata.Relation]*JoinStatement
	expanded bool
}

// NewRegistry creates a mapper registry over resolved entity metadata.
func NewRegistry(meta *metadata.Registry, namer *naming.Namer, logger *slog.Logger) *Registry {
	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		meta:     meta,
		namer:    namer,
		logger:   logger,
		mappers:  make(map[string]*MapperDefinition),
		byEntity: make(map[string]*MapperDefinition),
		joins:    make(map[*metadata.Relation]*JoinStatement),
	}
}

// Declare registers a mapper and its methods. Declared methods replace
// built-in methods of the same name.
func (r *Registry) Declare(decl Declaration) (*MapperDefinition, error) {
	if r.expanded {
		return nil, fmt.Errorf("failed to declare %s: relations are already expanded", decl.Namespace)
	}
	entity, ok := r.meta.Entity(decl.Entity)
	if !ok {
		return nil, &metadata.ConfigError{Kind: metadata.UnknownEntity, Entity: decl.Entity,
			Statement: decl.Namespace, Message: "mapper declared for an unregistered entity"}
	}
	namespace := decl.Namespace
	if namespace == "" {
		namespace = decl.Entity + "Mapper"
	}
	if _, exists := r.mappers[namespace]; exists {
		return nil, &metadata.ConfigError{Kind: metadata.DuplicateEntity, Entity: decl.Entity,
			Statement: namespace, Message: "namespace declared twice"}
	}
	if existing, exists := r.byEntity[entity.Name]; exists {
		return nil, &metadata.ConfigError{Kind: metadata.DuplicateEntity, Entity: decl.Entity,
			Statement: namespace, Message: fmt.Sprintf("entity already mapped by %s", existing.Namespace)}
	}

	def := &MapperDefinition{Namespace: namespace, Entity: entity}
	if !decl.NoBuiltins {
		def.Methods = builtinMethods(namespace, entity)
	}
	for _, md := range decl.Methods {
		m, err := r.declaredMethod(namespace, entity, md)
		if err != nil {
			return nil, err
		}
		def.put(m)
	}

	r.add(def)
	return def, nil
}

func (r *Registry) add(def *MapperDefinition) {
	r.mappers[def.Namespace] = def
	r.byEntity[def.Entity.Name] = def
	r.order = append(r.order, def.Namespace)
	for _, m := range def.Methods {
		r.namer.Resolver().RegisterMethod(def.Namespace, m.Name, "declared")
	}
}

func (r *Registry) declaredMethod(namespace string, entity *metadata.Entity, md MethodDeclaration) (*MethodDefinition, error) {
	if md.Name == "" {
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: entity.Name,
			Statement: namespace, Message: "method has no name"}
	}

	params := make([]ParameterDefinition, len(md.Params))
	for i, p := range md.Params {
		params[i] = ParameterDefinition{Name: p.Name, Type: p.Type, Kind: p.Kind, IfTest: p.IfTest}
	}

	kind := KindQuery
	switch {
	case md.SQL != "":
		kind = KindCustomSQL
	case hasParamKind(params, ParamUpdateSpecification):
		kind = KindUpdateSpecification
	case hasParamKind(params, ParamSpecification):
		kind = KindFindSpecification
		if strings.HasPrefix(md.Name, "count") {
			kind = KindCountSpecification
		}
	}

	m := newMethodDefinition(namespace, md.Name, kind, entity, params)
	m.ReturnType = md.ReturnType
	m.IfTest = md.IfTest
	m.SQL = md.SQL

	if m.Specification() && m.ArgumentCount() != 1 {
		return nil, &metadata.ConfigError{Kind: metadata.ParameterCount, Entity: entity.Name,
			Statement: m.StatementID(),
			Message:   fmt.Sprintf("specification methods take exactly 1 argument besides the page, got %d", m.ArgumentCount())}
	}
	return m, nil
}

func hasParamKind(params []ParameterDefinition, kind ParameterKind) bool {
	for _, p := range params {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// Mappers returns the mapper definitions in declaration order; implicit
// mappers created for join targets come last.
func (r *Registry) Mappers() []*MapperDefinition {
	out := make([]*MapperDefinition, 0, len(r.order))
	for _, ns := range r.order {
		out = append(out, r.mappers[ns])
	}
	return out
}

// Mapper looks up a mapper by namespace.
func (r *Registry) Mapper(namespace string) (*MapperDefinition, bool) {
	d, ok := r.mappers[namespace]
	return d, ok
}

// ForEntity looks up the mapper bound to an entity.
func (r *Registry) ForEntity(name string) (*MapperDefinition, bool) {
	d, ok := r.byEntity[name]
	return d, ok
}

// Method looks up a method by statement id.
func (r *Registry) Method(statementID string) (*MethodDefinition, bool) {
	idx := strings.LastIndex(statementID, ".")
	if idx < 0 {
		return nil, false
	}
	d, ok := r.mappers[statementID[:idx]]
	if !ok {
		return nil, false
	}
	return d.Method(statementID[idx+1:])
}

// JoinFor returns the join statement built for a relation during expansion.
func (r *Registry) JoinFor(rel *metadata.Relation) (*JoinStatement, bool) {
	j, ok := r.joins[rel]
	return j, ok
}

// Metadata returns the entity registry the mappers are bound to.
func (r *Registry) Metadata() *metadata.Registry {
	return r.meta
}
