// Package lifespan resolves which piece instances are on air for a part
// instance.
//
// Resolve combines three sources:
//
//   - the part's own pieces (materialized instances if the part was taken,
//     otherwise instances synthesized from the authored pieces)
//   - infinites continuing from the previously played part, when the move
//     stays inside their scope
//   - spanning infinites authored in skipped parts earlier in the scope
//
// It then applies same-layer supersession (the most recently started piece
// wins and the one it replaces is cut at its start) and prunes ended pieces.
// For a short window after a take or set-next, pruning is suspended and the
// caller is told when to regenerate.
package lifespan
