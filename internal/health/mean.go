package health

// Mean averages values. It returns nil when values is empty.
func Mean(values []float64) (*float64, int) {
	if len(values) == 0 {
		return nil, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := clampUnit(sum / float64(len(values)))
	return &m, len(values)
}

// IncrementalMean updates an aggregate of n members after one member's value
// moves from before to after. A nil before means the member was not counted;
// a nil after means it no longer counts. The result is nil when no members
// remain.
func IncrementalMean(mean *float64, n int, before, after *float64) (*float64, int) {
	var m float64
	if mean != nil && n > 0 {
		m = *mean
	} else {
		n = 0
	}

	sum := m * float64(n)
	next := n
	if before != nil && n > 0 {
		sum -= *before
		next--
	}
	if after != nil {
		sum += *after
		next++
	}
	if next <= 0 {
		return nil, 0
	}
	out := clampUnit(sum / float64(next))
	return &out, next
}

// clampUnit absorbs floating point drift from repeated incremental updates.
func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
