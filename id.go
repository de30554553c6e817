package intake

import "github.com/mwerk/intake/id"

// ID is the primary identifier type for all intake entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
