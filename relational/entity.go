package relational

// IDKind declares the Go type a caller-supplied primary-key value coerces
// to before it is sent to the store.
type IDKind int

const (
	IDKindInt IDKind = iota
	IDKindUUID
	IDKindBinary
)

// AssociationKind is one of the four relationship shapes spec.md §4.4
// mode 3 supports.
type AssociationKind int

const (
	BelongsTo AssociationKind = iota
	HasOne
	HasMany
	ManyToMany
)

func (k AssociationKind) singleValued() bool {
	return k == BelongsTo || k == HasOne
}

// Association describes one named relationship hanging off an Entity.
type Association struct {
	Kind   AssociationKind
	Target *Entity

	// ForeignKey is the column, on the child side for BelongsTo/HasOne/
	// HasMany, that holds the parent's primary-key value.
	ForeignKey string

	// JoinEntity, JoinParentKey and JoinTargetKey are set only for
	// ManyToMany: JoinEntity is the bridging table's Entity, JoinParentKey
	// is the column on the join entity referencing the parent, and
	// JoinTargetKey is the column on the join entity referencing Target.
	JoinEntity    *Entity
	JoinParentKey string
	JoinTargetKey string
}

// Entity describes one Go-struct-shaped relation mapped onto the
// underlying store: its primary key, its columns, and the associations
// reachable from it. This is the reflective half of the teacher's
// TableInfo, without the SQL-generation half (out of scope per spec's
// Non-goals).
type Entity struct {
	Name     string
	PKColumn string
	PKKind   IDKind

	Columns      []string
	Associations map[string]*Association
}

// NewEntity builds an Entity with the given name whose primary key is
// coerced per kind. The primary-key column is "id"; use WithPKColumn to
// change it.
func NewEntity(name string, kind IDKind) *Entity {
	return &Entity{
		Name:         name,
		PKColumn:     "id",
		PKKind:       kind,
		Associations: make(map[string]*Association),
	}
}

// WithPKColumn overrides the default "id" primary-key column name.
func (e *Entity) WithPKColumn(column string) *Entity {
	e.PKColumn = column
	return e
}

// WithColumns declares the entity's selectable columns.
func (e *Entity) WithColumns(columns ...string) *Entity {
	e.Columns = append(e.Columns, columns...)
	return e
}

// WithAssociation registers a named association, returning e for
// chaining, mirroring the teacher's fluent schema-building style.
func (e *Entity) WithAssociation(name string, assoc *Association) *Entity {
	e.Associations[name] = assoc
	return e
}

// Association looks up a registered association by name.
func (e *Entity) Association(name string) (*Association, bool) {
	assoc, ok := e.Associations[name]
	return assoc, ok
}
