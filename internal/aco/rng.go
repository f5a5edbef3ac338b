package aco

import "math/rand"

// deriveSeed mixes a parent seed and a stream id into an independent seed
// (SplitMix64 finalizer).
func deriveSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// agentSeeds draws one seed per agent from the run source. It runs on the
// coordinating goroutine so the seeds do not depend on scheduling.
func agentSeeds(base *rand.Rand, ants int) []int64 {
	seeds := make([]int64, ants)
	for k := range seeds {
		seeds[k] = deriveSeed(base.Int63(), uint64(k))
	}
	return seeds
}
