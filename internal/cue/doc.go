// Package cue defines the request, tier and error vocabulary shared by the
// playback orchestrator and its collaborators.
package cue
