// Package clip fetches pre-recorded audio resources by reference and knows
// how those references are laid out under an asset base.
package clip
