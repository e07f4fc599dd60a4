package protocol

// Kind identifies the classification of a scanner output line.
type Kind string

const (
	// KindRaw carries the untouched line text. Every non-empty line yields
	// a raw event in addition to any more specific classification, so a
	// live monitor never misses data.
	KindRaw Kind = "raw"
	// KindScanning means the scanner is currently reading a finger.
	KindScanning Kind = "scanning"
	// KindDetected means a stored template matched a live scan.
	KindDetected Kind = "detected"
	// KindUnregistered means a finger was scanned but no template matched.
	KindUnregistered Kind = "unregistered"
	// KindEnrollStep is a step of the multi-step enrollment handshake.
	KindEnrollStep Kind = "enroll_step"
	// KindStatus is device heartbeat/readiness chatter with no payload.
	KindStatus Kind = "status"
	// KindDeviceError is a transport-level fault, distinct from a
	// protocol-level enrollment failure.
	KindDeviceError Kind = "device_error"
)

// Step is one step of the enrollment handshake, in the fixed order the
// device firmware walks through them.
type Step string

const (
	StepWaitingID        Step = "waiting_id"
	StepStarted          Step = "started"
	StepPlaceFinger      Step = "place_finger"
	StepFirstImageTaken  Step = "first_image_taken"
	StepRemoveFinger     Step = "remove_finger"
	StepPlaceAgain       Step = "place_again"
	StepSecondImageTaken Step = "second_image_taken"
	StepModelCreated     Step = "model_created"
	StepSuccess          Step = "success"
	StepFailed           Step = "failed"
)

// Event is a single classified scanner event. Which fields are meaningful
// depends on Kind: TemplateID for detections, Step for enrollment steps,
// Message for device errors. Raw always holds the originating line except
// for synthetic device-error events.
type Event struct {
	Kind       Kind   `json:"kind"`
	Raw        string `json:"raw,omitempty"`
	TemplateID int    `json:"template_id,omitempty"`
	Step       Step   `json:"step,omitempty"`
	Message    string `json:"message,omitempty"`
}

// DeviceError builds a synthetic transport-fault event.
func DeviceError(message string) Event {
	return Event{Kind: KindDeviceError, Message: message}
}
