package relational

import (
	"context"

	dataloader "github.com/pdgonzalez872/dataloader"
)

// dispatchAssociation implements load mode 3: resolve the parent entity's
// association definition, then bind rows to parents by the foreign-key
// walk the association dictates (spec.md §4.4 mode 3, §4.5's cardinality
// rules for single-valued results).
func (s *Source) dispatchAssociation(ctx context.Context, baseQuery Query, req *request, outcomes map[string]dataloader.Outcome) {
	assoc, ok := req.entity.Association(req.associationName)
	if !ok {
		cause := dataloader.NewBackendError(unknownAssociation(req.entity.Name, req.associationName))
		for _, ik := range req.order {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return
	}

	// parentKeyColumn is the column, on the rows the store returns, that
	// identifies which parent a row belongs to: the target/join entity's
	// foreign key for belongs-to/has-one/has-many, or the join entity's
	// JoinParentKey for many-to-many (the bridging query is the Repo's
	// responsibility — the engine only needs to know which returned
	// column carries the parent identity to partition by).
	parentKeyColumn := assoc.ForeignKey
	if assoc.Kind == ManyToMany {
		parentKeyColumn = assoc.JoinParentKey
	}

	parentIDs := make([]interface{}, 0, len(req.order))
	for _, ik := range req.order {
		parentIDs = append(parentIDs, req.values[ik.Digest()])
	}

	if s.runBatch != nil {
		s.dispatchWithRunBatch(ctx, req.entity, baseQuery, parentKeyColumn, req.order, parentIDs, outcomes)
		return
	}

	rows, err := s.repo.RunBatch(ctx, baseQuery, Predicate{Column: parentKeyColumn, Values: parentIDs}, s.repoOpts)
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range req.order {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return
	}

	byParent := make(map[interface{}][]Row)
	for _, row := range rows {
		if v, ok := row.Get(parentKeyColumn); ok {
			byParent[v] = append(byParent[v], row)
		}
	}

	for _, ik := range req.order {
		matches := byParent[req.values[ik.Digest()]]
		if assoc.Kind.singleValued() {
			switch len(matches) {
			case 0:
				outcomes[ik.Digest()] = dataloader.NotFound()
			case 1:
				outcomes[ik.Digest()] = dataloader.OK(matches[0])
			default:
				outcomes[ik.Digest()] = dataloader.Err(dataloader.NewMultipleResultsError(req.entity.Name,
					"has-one association matched more than one row"))
			}
			continue
		}
		outcomes[ik.Digest()] = dataloader.OK(cloneRows(matches))
	}
}

type unknownAssociationError struct {
	entity, name string
}

func (e *unknownAssociationError) Error() string {
	return "relational: entity " + e.entity + " has no association " + e.name
}

func unknownAssociation(entity, name string) error {
	return &unknownAssociationError{entity: entity, name: name}
}
