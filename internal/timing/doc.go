// Package timing derives the numeric offsets that govern how two consecutive
// parts overlap on air.
//
// Calculate turns the in-transition of a part, the out-transition of the part
// it follows and the pre-roll and post-roll of their pieces into PartTimings.
// A running hold suppresses both transitions. PieceStart applies the content
// delay to an ordinary piece.
package timing
