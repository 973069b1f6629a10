package logsplit

// needRotation reports whether a line of lineBytes must go into a fresh chunk
// instead of the current one. flushedBytes is what the open chunk already
// holds on disk, pendingBytes what the batch holds for it in memory.
//
// The target is a soft ceiling: a chunk only closes when admitting the next
// line would push it past targetBytes. An empty chunk always admits the line,
// so a single line larger than the whole target still lands somewhere and the
// split keeps moving.
func needRotation(flushedBytes, pendingBytes, lineBytes, targetBytes int64) bool {
	occupied := flushedBytes + pendingBytes
	if occupied == 0 {
		return false
	}
	return occupied+lineBytes > targetBytes
}

// estimateChunks is the up-front guess at how many chunks a source of
// sourceBytes will produce. Line boundaries make it an estimate, never a
// promise; progress reporting clamps it so it never trails reality.
func estimateChunks(sourceBytes, targetBytes int64) int {
	n := sourceBytes / targetBytes
	if sourceBytes%targetBytes != 0 {
		n++
	}
	return int(n)
}
