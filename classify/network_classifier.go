package classify

import (
	"errors"
	"strconv"
)

// NetworkClassifier classifies transport failures by their network code.
//
// When more than one predicate of the error holds, reachability wins over
// timeout, and timeout over transient. HTTP errors carrying a status are
// handed to HTTP.
type NetworkClassifier struct {
	HTTP HTTPClassifier
}

func (c NetworkClassifier) Classify(val any, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}

	var he HTTPError
	if errors.As(err, &he) && he.HTTPStatusCode() != 0 {
		return c.HTTP.Classify(val, err)
	}

	ce := NewClassifiedError(err)
	code := ce.Code()
	out := Outcome{
		Kind:   OutcomeNonRetryable,
		Reason: "network_non_retryable",
		Attributes: map[string]string{
			"network_code": strconv.Itoa(int(code)),
			"network_name": code.String(),
		},
	}

	switch {
	case ce.WaitForReachabilityChange():
		out.Kind = OutcomeAwaitConnectivity
		out.Reason = "network_await_reachability"
	case ce.IsTimeout():
		out.Kind = OutcomeRetryable
		out.Reason = "network_timeout"
	case ce.IsTransient():
		out.Kind = OutcomeRetryable
		out.Reason = "network_transient"
		out.Attributes["retry_delay"] = "none"
	case code == CodeCancelled:
		out.Kind = OutcomeAbort
		out.Reason = "network_cancelled"
	}
	return out
}

// ClassifyResponse classifies a finished transport exchange.
func (c NetworkClassifier) ClassifyResponse(r ClassifiedResponse) Outcome {
	if ce := r.Err(); ce != nil {
		return c.Classify(r.Response(), ce)
	}
	return Outcome{Kind: OutcomeSuccess, Reason: "success"}
}
