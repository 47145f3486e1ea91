package statsync

// split partitions ids into at most n chunks of ceil(len/n) elements.
func split(ids []string, n int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	size := (len(ids) + n - 1) / n

	chunks := make([][]string, 0, n)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// dedupe drops empty and repeated identifiers, keeping first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
