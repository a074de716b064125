package query

import "errors"

// errFullOuterJoin is returned by Selection.Join when asked to build a
// full outer join: drivers are not required to support one, and the
// in-memory reference driver never produces one (§4.4 edge cases).
var errFullOuterJoin = errors.New("query: full outer join is not supported")
