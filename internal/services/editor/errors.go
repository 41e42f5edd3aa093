package editor

import "errors"

// Error kinds surfaced by the edit engine. Callers match them with errors.Is.
//
// Operations that are skipped (page out of range, non-image payload) are
// not errors; they are reported in the Result.
var (
	// ErrJobNotFound means the job or its original document does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRequest means the batch payload is structurally malformed.
	// It is returned before any operation is applied.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPayloadDecode means an inline image payload could not be decoded.
	// It aborts the batch and nothing is saved.
	ErrPayloadDecode = errors.New("payload decode error")

	// ErrDocumentIO means the document could not be opened, edited or saved.
	ErrDocumentIO = errors.New("document io error")

	// ErrJobBusy means another batch is already being applied to the job.
	ErrJobBusy = errors.New("job busy")
)

// ErrorKind maps an error returned by the engine to its wire name.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrPayloadDecode):
		return "payload_decode_error"
	case errors.Is(err, ErrDocumentIO):
		return "document_io_error"
	case errors.Is(err, ErrJobBusy):
		return "job_busy"
	default:
		return "internal_error"
	}
}
