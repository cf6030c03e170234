package headlessmocha

import (
	"context"
	"fmt"
	"time"

	"github.com/tomyan/headlessmocha/internal/results"
)

// awaitResult waits for the page to send its finished result bag. The page
// sends it exactly once, when the test run ends.
func awaitResult(ctx context.Context, payloads <-chan string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-payloads:
		if !ok {
			return "", ErrDisconnected
		}
		return payload, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// extract decodes the payload sent by the page and checks that every record
// is categorized exactly once.
func extract(payload string) (*results.Bag, error) {
	bag, err := results.Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResult, err)
	}
	if err := bag.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResult, err)
	}
	return bag, nil
}
