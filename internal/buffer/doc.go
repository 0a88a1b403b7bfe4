// Package buffer provides bounded status histories for pulsewatch services.
//
// A [Buffer] holds at most Cap observations. Two strategies implement it:
//
//   - [Sequence]: insertion-ordered ring. Keeps duplicate and out-of-order
//     timestamps exactly as pushed and evicts the oldest push. Nearest-time
//     lookup is a linear scan.
//   - [TimeIndexed]: B-tree keyed by timestamp. Collapses entries sharing an
//     instant (last write wins) and evicts the chronologically oldest entry.
//     Nearest-time lookup is a predecessor/successor search in O(log n).
//
// The strategies diverge when observations arrive out of order or share a
// timestamp, so a deployment picks one at construction time (see
// [ParseStrategy]) and keeps it. [Buffer.Sequence] and [FromSequence] are the
// transfer form used for persistence.
package buffer
