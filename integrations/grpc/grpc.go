// Package grpc maps gRPC status errors onto network codes so gRPC calls
// classify the same way as HTTP transport failures.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aponysus/procedure/classify"
	"github.com/aponysus/procedure/logger"
)

// CodeOf maps a gRPC status error to a network code. Errors that carry no
// gRPC status fall back to classify.CodeOf.
func CodeOf(err error) classify.Code {
	if err == nil {
		return classify.CodeNone
	}
	st, ok := status.FromError(err)
	if !ok {
		return classify.CodeOf(err)
	}
	switch st.Code() {
	case codes.OK:
		return classify.CodeNone
	case codes.Canceled:
		return classify.CodeCancelled
	case codes.DeadlineExceeded:
		return classify.CodeTimedOut
	case codes.Unavailable:
		return classify.CodeNetworkConnectionLost
	default:
		return classify.CodeUnknown
	}
}

// Wrap attaches the network code of a gRPC error. The gRPC status stays
// reachable through status.FromError. Errors without a transport meaning are
// returned unchanged.
func Wrap(err error) error {
	code := CodeOf(err)
	if code == classify.CodeNone || code == classify.CodeUnknown {
		return err
	}
	return &classify.NetworkError{Code: code, Err: err}
}

// UnaryClientInterceptor returns a gRPC interceptor that wraps call failures
// with Wrap. It does not retry.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err == nil {
			return nil
		}
		logger.FromContext(ctx).Debug("grpc call failed",
			"service", serviceName(method),
			"method", method,
			"code", status.Code(err).String(),
		)
		return Wrap(err)
	}
}

// "/package.Service/Method" -> "package.Service"
func serviceName(method string) string {
	method = strings.TrimPrefix(method, "/")
	if i := strings.Index(method, "/"); i >= 0 {
		return method[:i]
	}
	return method
}

// Classifier implements classify.Classifier for gRPC status codes.
type Classifier struct{}

func (Classifier) Classify(val any, err error) classify.Outcome {
	if err == nil {
		return classify.Outcome{Kind: classify.OutcomeSuccess, Reason: "success"}
	}

	// Non-gRPC errors go through the generic chain.
	st, ok := status.FromError(err)
	if !ok {
		return classify.AutoClassifier{}.Classify(val, err)
	}

	code := st.Code()
	if code == codes.OK {
		return classify.Outcome{Kind: classify.OutcomeSuccess, Reason: "success"}
	}

	netCode := CodeOf(err)
	outcome := classify.Outcome{
		Kind:   classify.OutcomeNonRetryable,
		Reason: "grpc_" + code.String(),
		Attributes: map[string]string{
			"grpc_code":    code.String(),
			"network_name": netCode.String(),
		},
	}

	switch code {
	case codes.Unavailable, codes.ResourceExhausted:
		outcome.Kind = classify.OutcomeRetryable
	case codes.DeadlineExceeded:
		outcome.Kind = classify.OutcomeRetryable
		outcome.Reason = "context_deadline_exceeded"
	case codes.Canceled:
		outcome.Kind = classify.OutcomeAbort
		outcome.Reason = "context_canceled"
	case codes.Unknown:
		// Usually an application error on the server side.
	}

	return outcome
}

// ClassifierName is the registry name Register uses.
const ClassifierName = "grpc"

// Register adds Classifier to reg under ClassifierName.
func Register(reg *classify.Registry) {
	reg.Register(ClassifierName, Classifier{})
}
