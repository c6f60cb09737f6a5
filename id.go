package manta

import "github.com/jcppman/kurasu-manta-sub000/id"

// ID is the primary identifier type for all Manta entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
