// Package session groups runs under named user sessions with bounded
// capacity. At most five sessions are kept and each tracks at most ten runs;
// both caps evict FIFO rather than reject, so the store never grows without
// bound. Records persist through the same atomic JSON writes as run progress.
package session
