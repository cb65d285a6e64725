// Package curation implements the content-curation agent.
//
// The agent scores videos through a host-supplied Scorer, reorders playlists
// for engagement flow and emits peak-hour and duration strategy
// recommendations. Scoring formulas live in the host; this package only
// combines scores and acts on them.
//
// The peak window is either a list of hours or, when peak_schedule is set, a
// cron expression such as "* 19-21 * * 1-5".
package curation
