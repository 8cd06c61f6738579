package relational

import (
	"context"

	"golang.org/x/sync/errgroup"

	dataloader "github.com/pdgonzalez872/dataloader"
)

// runConcurrently dispatches one goroutine per pending batch digest,
// coordinated by an errgroup so the caller observes a single
// synchronisation barrier — the same shape dataloader/kv.Source and the
// root run engine use.
func runConcurrently(ctx context.Context, order []string, dispatch func(context.Context, string)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, bd := range order {
		bd := bd
		g.Go(func() error {
			dispatch(gctx, bd)
			return nil
		})
	}
	return g.Wait()
}

// dispatchBatch executes one pending batch, per spec.md §4.5: build the
// base query, add the batching predicate, run it (or defer to a
// caller-supplied RunBatchFunc), and partition rows back to item keys.
// Outcomes are keyed by item digest, not by the ItemKey value itself,
// since an item key's raw value need not be comparable.
func (s *Source) dispatchBatch(ctx context.Context, req *request) map[string]dataloader.Outcome {
	outcomes := make(map[string]dataloader.Outcome, len(req.order))

	defer func() {
		if r := recover(); r != nil {
			cause := dataloader.NewBackendError(panicError(r))
			for _, ik := range req.order {
				outcomes[ik.Digest()] = dataloader.Err(cause)
			}
		}
	}()

	merged := s.mergeParams(req.params)
	// An association load selects rows of the association's target entity,
	// so its base query is built for the target, not the parent.
	queryEntity := req.entity
	if req.mode == modeAssociation {
		if assoc, ok := req.entity.Association(req.associationName); ok && assoc.Target != nil {
			queryEntity = assoc.Target
		}
	}
	baseQuery, err := s.query(queryEntity, merged)
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range req.order {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return outcomes
	}

	switch req.mode {
	case modePK:
		s.dispatchPK(ctx, baseQuery, req, outcomes)
	case modeColumn:
		s.dispatchColumn(ctx, baseQuery, req, outcomes)
	case modeAssociation:
		s.dispatchAssociation(ctx, baseQuery, req, outcomes)
	}
	return outcomes
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicValue{r}
}

type panicValue struct{ v interface{} }

func (p *panicValue) Error() string { return "relational: panic during batch dispatch" }

// dispatchPK implements load mode 1: coerce every item key's value to the
// entity's declared primary-key type, then resolve by primary-key
// equality.
func (s *Source) dispatchPK(ctx context.Context, baseQuery Query, req *request, outcomes map[string]dataloader.Outcome) {
	// mapKey makes a []byte (binary) id usable as a map key; several item
	// keys (e.g. "1" and 1) may coerce to the same id.
	mapKey := func(v interface{}) interface{} {
		if b, ok := v.([]byte); ok {
			return string(b)
		}
		return v
	}
	coercedOrder := make([]dataloader.ItemKey, 0, len(req.order))
	ids := make([]interface{}, 0, len(req.order))
	idToItems := make(map[interface{}][]dataloader.ItemKey, len(req.order))
	for _, ik := range req.order {
		coerced, err := coercePK(req.entity, req.values[ik.Digest()])
		if err != nil {
			outcomes[ik.Digest()] = dataloader.Err(err)
			continue
		}
		coercedOrder = append(coercedOrder, ik)
		ids = append(ids, coerced)
		idToItems[mapKey(coerced)] = append(idToItems[mapKey(coerced)], ik)
	}
	if len(ids) == 0 {
		return
	}

	if s.runBatch != nil {
		s.dispatchWithRunBatch(ctx, req.entity, baseQuery, req.entity.PKColumn, coercedOrder, ids, outcomes)
		return
	}

	rows, err := s.repo.RunBatch(ctx, baseQuery, Predicate{Column: req.entity.PKColumn, Values: ids}, s.repoOpts)
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range coercedOrder {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return
	}

	byID := make(map[interface{}]Row, len(rows))
	for _, row := range rows {
		if v, ok := row.Get(req.entity.PKColumn); ok {
			byID[mapKey(v)] = row
		}
	}
	for id, iks := range idToItems {
		row, found := byID[id]
		for _, ik := range iks {
			if found {
				outcomes[ik.Digest()] = dataloader.OK(row)
			} else {
				outcomes[ik.Digest()] = dataloader.NotFound()
			}
		}
	}
}

// dispatchColumn implements load mode 2: resolve by the declared column,
// honouring the one/many cardinality rule.
func (s *Source) dispatchColumn(ctx context.Context, baseQuery Query, req *request, outcomes map[string]dataloader.Outcome) {
	values := make([]interface{}, 0, len(req.order))
	for _, ik := range req.order {
		values = append(values, req.values[ik.Digest()])
	}

	if s.runBatch != nil {
		s.dispatchWithRunBatch(ctx, req.entity, baseQuery, req.column, req.order, values, outcomes)
		return
	}

	rows, err := s.repo.RunBatch(ctx, baseQuery, Predicate{Column: req.column, Values: values}, s.repoOpts)
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range req.order {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return
	}

	byValue := make(map[interface{}][]Row)
	for _, row := range rows {
		if v, ok := row.Get(req.column); ok {
			byValue[v] = append(byValue[v], row)
		}
	}

	for _, ik := range req.order {
		matches := byValue[req.values[ik.Digest()]]
		switch req.cardinality {
		case One:
			switch len(matches) {
			case 0:
				outcomes[ik.Digest()] = dataloader.NotFound()
			case 1:
				outcomes[ik.Digest()] = dataloader.OK(matches[0])
			default:
				outcomes[ik.Digest()] = dataloader.Err(dataloader.NewMultipleResultsError(req.entity.Name,
					"column load with cardinality one matched more than one row"))
			}
		case Many:
			outcomes[ik.Digest()] = dataloader.OK(cloneRows(matches))
		}
	}
}

// dispatchWithRunBatch defers steps 3-4 of the default dispatch to the
// caller-supplied RunBatchFunc. A result slice whose length differs from
// the number of items, or an outcome with an unrecognised Kind, is a
// protocol violation; ItemOutcome carries no item identity, so results are
// bound to items by position and their order is not checked.
func (s *Source) dispatchWithRunBatch(ctx context.Context, entity *Entity, baseQuery Query, column string, order []dataloader.ItemKey, items []interface{}, outcomes map[string]dataloader.Outcome) {
	results, err := s.runBatch(ctx, entity, baseQuery, column, items, s.repoOpts)
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range order {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return
	}
	if len(results) != len(order) {
		violation := dataloader.NewProtocolViolationError(len(order), len(results))
		for _, ik := range order {
			outcomes[ik.Digest()] = dataloader.Err(violation)
		}
		return
	}
	for i, ik := range order {
		switch results[i].Kind {
		case OutcomeOK:
			outcomes[ik.Digest()] = dataloader.OK(results[i].Value)
		case OutcomeNotFound:
			outcomes[ik.Digest()] = dataloader.NotFound()
		case OutcomeError:
			outcomes[ik.Digest()] = dataloader.Err(results[i].Cause)
		default:
			outcomes[ik.Digest()] = dataloader.Err(dataloader.NewProtocolViolationError(len(order), len(results)))
		}
	}
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
