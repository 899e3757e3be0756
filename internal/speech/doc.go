// Package speech selects synthesis voices and drives a speech engine.
//
// An Engine exposes a voice list that may arrive late, a signal for when it
// changes, a blocking Speak and a Cancel that interrupts the current
// utterance. The Speaker wraps an engine with voice selection, tone
// profiles and the warm-up delay policy.
package speech
