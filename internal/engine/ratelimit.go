package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// apiLimiter throttles all Innertube and Data API calls.
// A single shared limiter keeps the whole process under YouTube's tolerance
// regardless of how many collectors are active.
var apiLimiter *rate.Limiter

func initLimiter(rps float64, burst int) {
	if rps <= 0 {
		rps = 2.0
	}
	if burst <= 0 {
		burst = 4
	}
	apiLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// WaitAPI blocks until the shared API rate limiter admits one call.
func WaitAPI(ctx context.Context) error {
	if apiLimiter == nil {
		return nil
	}
	return apiLimiter.Wait(ctx)
}
