// Package protocol turns the fingerprint scanner's loosely structured text
// output into typed events. The firmware messages are not a designed
// protocol: phrases overlap and appear in different casings, so matching is
// an ordered table evaluated in a fixed precedence rather than anything
// derived at runtime.
package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// stepRule maps a firmware phrase to an enrollment step. Rules are checked
// in declaration order and the first match wins; the order matters because
// some phrases are substrings of others.
type stepRule struct {
	match func(string) bool
	step  Step
}

func contains(phrase string) func(string) bool {
	return func(line string) bool { return strings.Contains(line, phrase) }
}

func containsAny(phrases ...string) func(string) bool {
	return func(line string) bool {
		for _, p := range phrases {
			if strings.Contains(line, p) {
				return true
			}
		}
		return false
	}
}

var enrollStepRules = []stepRule{
	{contains("Enrolling ID"), StepStarted},
	{contains("Enter ID"), StepWaitingID},
	// "Place finger" must not shadow "Place finger again".
	{func(line string) bool {
		return strings.Contains(line, "Place finger") && !strings.Contains(line, "Place finger again")
	}, StepPlaceFinger},
	{contains("First image taken"), StepFirstImageTaken},
	{contains("Remove finger"), StepRemoveFinger},
	{contains("Place finger again"), StepPlaceAgain},
	{contains("Second image taken"), StepSecondImageTaken},
	{contains("Model created"), StepModelCreated},
	{containsAny("Enroll success", "ENROLL_OK", "enroll_ok", "now stored", "stored at"), StepSuccess},
	{containsAny("ENROLL_FAIL", "Store failed"), StepFailed},
	{contains("Model failed"), StepFailed},
	{contains("Invalid ID"), StepFailed},
}

// detectedPatterns are tried in order; the first successful pattern wins and
// no further pattern is attempted for that line. The last pattern subsumes
// the second, which is why the order is load-bearing.
var detectedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Detected ID:\s*(\d+)`),
	regexp.MustCompile(`Found ID\s*#\s*(\d+)`),
	regexp.MustCompile(`Found ID\s*#?(\d+)`),
}

var statusPhrases = []string{
	"ready for scanning",
	"Sensor found",
	"Sensor not found",
	"READY",
	"HEARTBEAT",
}

// Classify converts one line of scanner output into zero or more events.
// The checkpoints below are independent: a single line can legitimately
// satisfy several of them, and each classified event is emitted in checkpoint
// order. An empty or whitespace-only line yields nothing.
func Classify(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	events := []Event{{Kind: KindRaw, Raw: line}}

	for _, rule := range enrollStepRules {
		if rule.match(line) {
			events = append(events, Event{Kind: KindEnrollStep, Step: rule.step, Raw: line})
			break
		}
	}

	if strings.Contains(line, "Fingerprint scanning") {
		events = append(events, Event{Kind: KindScanning, Raw: line})
	}

	for _, re := range detectedPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if id, err := strconv.Atoi(m[1]); err == nil {
			events = append(events, Event{Kind: KindDetected, TemplateID: id, Raw: line})
		}
		break
	}

	if strings.Contains(line, "Unregistered") {
		events = append(events, Event{Kind: KindUnregistered, Raw: line})
	}

	for _, phrase := range statusPhrases {
		if strings.Contains(line, phrase) {
			events = append(events, Event{Kind: KindStatus, Raw: line})
			break
		}
	}

	return events
}

// The firmware vocabulary is not fully consistent across versions, so the
// enrollment coordinator double-checks raw lines against these synonym sets
// in addition to the classified step events.

// IsEnterIDPrompt reports whether a raw line is the device asking for the
// slot id, regardless of casing.
func IsEnterIDPrompt(line string) bool {
	return strings.Contains(strings.ToLower(line), "enter id")
}

// IsEnrollSuccessLine reports whether a raw line indicates a completed
// enrollment, regardless of casing.
func IsEnrollSuccessLine(line string) bool {
	l := strings.ToLower(line)
	for _, p := range []string{"enroll success", "enroll_ok", "now stored", "stored at"} {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}

// IsEnrollFailureLine reports whether a raw line indicates a failed
// enrollment, regardless of casing.
func IsEnrollFailureLine(line string) bool {
	l := strings.ToLower(line)
	for _, p := range []string{"enroll_fail", "store failed", "model failed", "invalid id"} {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}
