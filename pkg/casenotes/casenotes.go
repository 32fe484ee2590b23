// Package casenotes splits and merges the legacy combined free-text field
// that interleaves operator case notes with a call transcript. New records
// store the two as separate columns; this package is the migration shim for
// combined text still arriving from older rows and voice-agent payloads.
//
// Split and Join round-trip exactly when the transcript is introduced by the
// marker line. The token-based fallback in Split is heuristic and lossy:
// joining its output reinserts the marker, so the original string is not
// reproduced.
package casenotes

import (
	"regexp"
	"strings"
)

// Marker is the literal line that introduces a transcript block inside the
// combined field.
const Marker = "--- Call Transcript ---"

// markerRE matches the marker on its own line, consuming the trailing
// newline so the transcript starts at its first line.
var markerRE = regexp.MustCompile(`(?m)^--- Call Transcript ---\r?\n?`)

// turnRE matches transcript turn-taking lines ("Agent: ...", "Caller: ...").
var turnRE = regexp.MustCompile(`(?m)^(Agent|Caller|Operator|Worker):\s`)

// Split extracts the transcript block from a combined notes field. When the
// marker line is present, everything after it is the transcript and the text
// before it (minus the separating newline) is the notes. When the marker is
// absent but turn-taking lines exist, the text is partitioned at the first
// such line. Otherwise the whole input is notes.
func Split(combined string) (notes, transcript string) {
	if loc := markerRE.FindStringIndex(combined); loc != nil {
		notes = strings.TrimSuffix(combined[:loc[0]], "\n")
		transcript = combined[loc[1]:]
		return notes, transcript
	}

	if loc := turnRE.FindStringIndex(combined); loc != nil {
		notes = strings.TrimRight(combined[:loc[0]], "\n")
		transcript = combined[loc[0]:]
		return notes, transcript
	}

	return combined, ""
}

// Join is the inverse of Split for the well-formed marker case. An empty
// transcript returns the notes unchanged; an empty notes field starts the
// combined text at the marker.
func Join(notes, transcript string) string {
	if transcript == "" {
		return notes
	}
	if notes == "" {
		return Marker + "\n" + transcript
	}
	return notes + "\n" + Marker + "\n" + transcript
}

// HasTranscript reports whether a combined field contains either the marker
// or transcript-indicative turn-taking lines.
func HasTranscript(combined string) bool {
	return markerRE.MatchString(combined) || turnRE.MatchString(combined)
}
