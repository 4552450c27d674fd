package base

import "bytes"

// Compare is the lexicographic byte comparator used everywhere a key
// ordering is required: the write buffer sort, the table logger's
// separator selection, and the reader's binary searches. Spec §3 fixes
// this as the one and only comparator: there is no pluggable Comparer
// the way an LSM engine would have, since directories never merge
// across processes with different orderings.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// SeparatorBetween returns the shortest byte string s such that
// lastOfBlock <= s < firstOfNextBlock, used by the table logger to
// shorten index-block separator keys (spec §4.D "pending index entry").
// If firstOfNextBlock is empty (last block in the table), lastOfBlock is
// returned verbatim.
func SeparatorBetween(lastOfBlock, firstOfNextBlock []byte) []byte {
	if len(firstOfNextBlock) == 0 {
		return lastOfBlock
	}
	n := sharedPrefixLen(lastOfBlock, firstOfNextBlock)
	if n < len(lastOfBlock) && n < len(firstOfNextBlock) {
		// Try to find the shortest separator by bumping the shared prefix's
		// next byte in lastOfBlock, provided that still keeps it < next.
		if lastOfBlock[n] < 0xff && lastOfBlock[n]+1 < firstOfNextBlock[n] {
			sep := make([]byte, n+1)
			copy(sep, lastOfBlock[:n])
			sep[n] = lastOfBlock[n] + 1
			return sep
		}
	}
	return lastOfBlock
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
