// Package generator builds the device timeline for one playlist from a
// PlayoutSnapshot.
//
// Build is a pure function: it resolves the active pieces of the previous,
// current and next part instances, derives their part timings and assembles
// the graph. Given the same snapshot it returns the same ids and enables.
//
// Root groups, lowest priority first:
//
//	baseline_group                       while "1"
//	part_group_<previous instance>       previous start .. #active.start + continue
//	part_group_<current instance>        on-air anchor, duration only if auto-next is armed
//	infinite_group_<infinite instance>   absolute executedAt
//	part_group_<next instance>           #active.end - next continue (auto-next only)
//
// Every piece contributes a control object, an optional pre-roll object and a
// content group holding clones of its device objects.
//
// Generate wraps Build with the blueprint hook and the final checks that a
// published timeline must pass.
package generator
