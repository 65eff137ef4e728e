// Package clock abstracts wall-clock access so schedulers and fetchers can
// be driven with a fake clock in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}
