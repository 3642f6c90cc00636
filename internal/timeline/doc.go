// Package timeline defines the device timeline document produced by the
// playout core and consumed by the device-control layer.
//
// A Timeline is a forest of Objects. Groups own children; every Object has an
// Enable window whose boundaries are typed Time expressions:
//
//   - Offset: a number of milliseconds (absolute epoch for root groups,
//     relative to the parent group start for children)
//   - Ref: a reference to another object's start or end, plus offset terms
//   - Now: the "now" sentinel, resolved by the device when it plays the object
//   - Always: the "while: 1" marker used by the baseline group
//
// Time expressions are only lowered to the wire string syntax
// ("#part_group_a.end - 30 - 20") at serialisation time, so a reference can
// only be built from a Handle returned by the Graph that owns the target.
//
// # Key Types
//
//   - Graph: builder that hands out Handles for every node it adds
//   - Timeline: the published document (groups plus optional autoNext)
//   - TimeVisitor: mandatory visitor over the Time variants
//
// # Invariants
//
// Validate enforces that object ids are unique within one generation and that
// every Ref targets an object present in the same generation.
package timeline
