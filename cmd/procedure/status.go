package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aponysus/procedure/classify"
)

// StatusCmd describes an HTTP status code and how a GET failing with it
// would classify.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status CODE",
		Short: "Describe an HTTP status code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("status code must be a number: %w", err)
			}
			sc, err := classify.ParseStatusCode(n)
			if err != nil {
				return err
			}

			out := classify.HTTPClassifier{}.Classify(nil, statusOnly(sc))
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "status:  %s\n", sc)
			fmt.Fprintf(w, "class:   %s\n", statusClass(sc))
			fmt.Fprintf(w, "outcome: %s (%s)\n", out.Kind, out.Reason)
			return nil
		},
	}
}

func statusClass(sc classify.StatusCode) string {
	switch {
	case sc.IsInformational():
		return "informational"
	case sc.IsSuccess():
		return "success"
	case sc.IsRedirection():
		return "redirection"
	case sc.IsClientError():
		return "client_error"
	case sc.IsServerError():
		return "server_error"
	default:
		return "unknown"
	}
}

type statusOnly classify.StatusCode

func (s statusOnly) Error() string                   { return classify.StatusCode(s).String() }
func (s statusOnly) HTTPStatusCode() int             { return int(s) }
func (statusOnly) HTTPMethod() string                { return "GET" }
func (statusOnly) RetryAfter() (time.Duration, bool) { return 0, false }
