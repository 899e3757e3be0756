// Package audio provides the platform output used by the orchestrator:
// an oto/v3 backed device that mixes independent playbacks, PCM helpers,
// MP3 decoding, and a mock device for tests.
package audio
