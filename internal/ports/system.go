package ports

// CPUSampler reports CPU usage of the calling thread.
type CPUSampler interface {
	// Sample returns the percentage of one core used by the calling thread since the
	// previous call. The first call primes the sampler and returns 0.
	Sample() float64
}
