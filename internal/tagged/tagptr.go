// Package tagged packs a pointer and a small generation counter into a
// single machine word, so a lock-free structure can detect that a node
// was freed and reused between a load and its matching compare-and-swap.
package tagged

// Pointer is a pointer to E plus a generation tag, packed into one word.
type Pointer[E any] uint64

// minTagBits is the minimum number of tag bits every platform guarantees.
const minTagBits = 10
