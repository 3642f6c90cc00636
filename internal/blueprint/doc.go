// Package blueprint defines the per-show hooks the playout core calls during
// timeline generation.
//
// Two implementations ship with the core:
//
//   - Noop passes the timeline and persistent state through unchanged.
//   - Standard carries audio levels from one part to the next through the
//     part end state, and counts part changes in the persistent state.
//
// A hook may add and decorate objects but must not move a root group or the
// auto-next instant. GuardAnchors compares the timeline before and after the
// hook and reports ErrAnchorAltered when it did.
package blueprint
