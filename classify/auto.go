package classify

import "errors"

// AutoClassifier delegates to a specific classifier based on the error type,
// or falls back to a generic default.
//
// Behavior:
// - If the error chain carries an HTTPError with a status: uses HTTPClassifier.
// - If the error maps to a network code: uses NetworkClassifier.
// - Otherwise: uses AlwaysRetryOnError.
type AutoClassifier struct{}

func (AutoClassifier) Classify(val any, err error) Outcome {
	var he HTTPError
	if errors.As(err, &he) && he.HTTPStatusCode() != 0 {
		return HTTPClassifier{}.Classify(val, err)
	}
	if IsNetworkCode(CodeOf(err)) {
		return NetworkClassifier{}.Classify(val, err)
	}
	return AlwaysRetryOnError{}.Classify(val, err)
}
