package pipeline

import "fmt"

// Reason classifies why an evaluation failed, so a caller can switch on
// it without string-matching. The HTTP handlers do not read it: each route
// answers every evaluation failure with one fixed status code.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"          // block instance or block type lookup failed
	ReasonMissingInput    Reason = "missing_input"      // input uuid unresolvable at execute time
	ReasonCycle           Reason = "cycle"              // revisited an un-memoized node
	ReasonConfig          Reason = "config"             // e.g. more placeholders than gui_fields, bad arity
	ReasonSubprocess      Reason = "subprocess_failure" // nonzero exit or missing output
	ReasonLoadImageLookup Reason = "load_image_lookup"  // "Load Image" filename has no input_images row
)

// EvalError is the typed failure the Pipeline Evaluator returns. It
// carries the block id where the failure originated and a Reason the
// caller can switch on.
type EvalError struct {
	BlockID int64
	Reason  Reason
	Err     error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("block %d: %s: %v", e.BlockID, e.Reason, e.Err)
	}
	return fmt.Sprintf("block %d: %s", e.BlockID, e.Reason)
}

func (e *EvalError) Unwrap() error { return e.Err }

func fail(blockID int64, reason Reason, err error) error {
	return &EvalError{BlockID: blockID, Reason: reason, Err: err}
}
