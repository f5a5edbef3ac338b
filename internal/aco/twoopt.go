package aco

// twoOptEpsilon ignores improvements below floating-point noise
const twoOptEpsilon = 1e-12

// twoOptMaxPasses bounds the number of full sweeps per tour
const twoOptMaxPasses = 50

// twoOpt improves tour in place by reversing segments while that shortens
// it (first improvement). When closed is false the endpoints stay fixed.
// It reports whether the tour changed.
func twoOpt(tour []int, dist *DistanceMatrix, closed bool) bool {
	n := len(tour)
	if n < 4 {
		return false
	}

	last := n - 2
	if closed {
		last = n - 1
	}

	improved := false
	for pass := 0; pass < twoOptMaxPasses; pass++ {
		changed := false
		for i := 0; i < n-2; i++ {
			a, b := tour[i], tour[i+1]
			for j := i + 2; j <= last; j++ {
				if closed && i == 0 && j == n-1 {
					continue // edges share city tour[0]
				}
				c := tour[j]
				d := tour[(j+1)%n]

				delta := dist.At(a, c) + dist.At(b, d) - dist.At(a, b) - dist.At(c, d)
				if delta < -twoOptEpsilon {
					reverseInts(tour[i+1 : j+1])
					b = tour[i+1]
					changed = true
				}
			}
		}
		if !changed {
			break
		}
		improved = true
	}
	return improved
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
