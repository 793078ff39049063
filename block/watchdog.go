// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package block

import "time"

// Watchdog is a liveness deadline. Once the deadline passes the watchdog is expired
// (hard) until reset, and Pending reports the expiry exactly once (soft) so callers
// can log or react a single time per expiry.
//
// A Watchdog is owned by the scheduling loop and is not safe for concurrent use.
type Watchdog struct {
	timeout  time.Duration
	deadline time.Time
	notified bool
}

// NewWatchdog returns a watchdog armed at now
func NewWatchdog(timeout time.Duration, now time.Time) Watchdog {
	w := Watchdog{timeout: timeout}
	w.Reset(now)
	return w
}

// Reset re-arms the watchdog for another full timeout period starting at now
func (w *Watchdog) Reset(now time.Time) {
	w.deadline = now.Add(w.timeout)
	w.notified = false
}

// Deadline returns the time at which the watchdog expires
func (w *Watchdog) Deadline() time.Time {
	return w.deadline
}

// Expired reports whether the deadline has passed
func (w *Watchdog) Expired(now time.Time) bool {
	return !now.Before(w.deadline)
}

// Pending returns true the first time it observes the watchdog expired after
// the last reset, and false otherwise
func (w *Watchdog) Pending(now time.Time) bool {
	if w.notified || !w.Expired(now) {
		return false
	}
	w.notified = true
	return true
}
