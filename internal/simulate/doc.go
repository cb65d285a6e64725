// Package simulate provides randomized stand-ins for the host collaborators
// (video scoring, stream sampling, settings application) so the binary runs
// without a real media server.
package simulate
