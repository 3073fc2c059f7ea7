package commerce

import "time"

// Option overrides a service's time or identifier source. Production code
// uses the defaults (time.Now, random UUIDs); tests pin deterministic values.
type Option func(*settings)

type settings struct {
	now   func() time.Time
	newID func() string
}

// WithClock makes the service read the current time from now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithIDGenerator makes the service mint identifiers with gen. Services that
// never create identifiers ignore it.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) { s.newID = gen }
}

func (s *settings) apply(opts []Option) {
	for _, opt := range opts {
		opt(s)
	}
}
