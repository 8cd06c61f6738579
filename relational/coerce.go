package relational

import (
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	dataloader "github.com/pdgonzalez872/dataloader"
)

// coercePK converts a caller-supplied primary-key value (typically a
// string, but int64/uuid.UUID/[]byte pass through unchanged) to the Go
// type entity.PKKind declares, per spec.md §4.4's "implicit primary-key
// type coercion" design note. A value that cannot be coerced fails the
// whole item with *dataloader.BadIDError, never the whole batch.
func coercePK(entity *Entity, value interface{}) (interface{}, error) {
	switch entity.PKKind {
	case IDKindInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, dataloader.NewBadIDError(entity.Name, value, "not a valid integer id")
			}
			return n, nil
		default:
			return nil, dataloader.NewBadIDError(entity.Name, value, "unsupported id type for integer primary key")
		}
	case IDKindUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, dataloader.NewBadIDError(entity.Name, value, "not a valid uuid")
			}
			return id, nil
		default:
			return nil, dataloader.NewBadIDError(entity.Name, value, "unsupported id type for uuid primary key")
		}
	case IDKindBinary:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			b, err := hex.DecodeString(v)
			if err != nil {
				return nil, dataloader.NewBadIDError(entity.Name, value, "not a valid hex-encoded binary id")
			}
			return b, nil
		default:
			return nil, dataloader.NewBadIDError(entity.Name, value, "unsupported id type for binary primary key")
		}
	default:
		return nil, dataloader.NewBadIDError(entity.Name, value, "entity declares an unknown id kind")
	}
}
