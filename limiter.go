package visitgrid

import (
	"time"

	"github.com/eringen/visitgrid/analytics"
)

// LoginLimiter rate-limits failed login attempts per IP address.
type LoginLimiter struct {
	lim *analytics.Limiter
}

// NewLoginLimiter creates a LoginLimiter that allows max failures per window.
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{lim: analytics.NewLimiter(max, window)}
}

// Check reports whether the IP may attempt a login. It records nothing; call
// Record on failure.
func (l *LoginLimiter) Check(ip string) bool {
	return l.lim.Check(ip)
}

// Record registers a failed login attempt for the given IP.
func (l *LoginLimiter) Record(ip string) {
	l.lim.Allow(ip)
}
