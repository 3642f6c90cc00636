// Package rundown holds the playout data model shared by the resolver, the
// timing calculator and the timeline builder: Parts and their Pieces as
// authored, PartInstances and PieceInstances as played, and the immutable
// PlayoutSnapshot a regeneration reads.
//
// All times are epoch milliseconds (int64). Durations are milliseconds.
//
// # Lifespans
//
// A Piece with a lifespan other than WITHIN_PART is "infinite": it outlives
// the part that started it until a later piece on the same layer replaces it
// or the playhead leaves its scope (segment or rundown). STICKY lifespans
// survive any move inside the scope; SPANNING lifespans only continue forward
// in authoring order.
//
// # Transitions
//
// TransitionType values are dispatched through TransitionVisitor. Every
// consumer implements all variants, and an unknown value yields
// ErrUnsupportedOperation instead of being silently treated as content.
package rundown
