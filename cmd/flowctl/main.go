// Command flowctl talks to a running flowd over its Connect API. It can hold
// a chat session from the terminal and run the operator admin calls.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/voicetyped/supportflow/internal/connectutil"
	"github.com/voicetyped/supportflow/internal/flow/flowrpc"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	addr    string
	token   string
	timeout time.Duration
}

func (o *globalOptions) client() *flowrpc.FlowServiceClient {
	opts := append(connectutil.DefaultClientOptions(),
		connect.WithInterceptors(connectutil.BearerToken(o.token)),
	)
	httpClient := &http.Client{Timeout: o.timeout}
	return flowrpc.NewFlowServiceClient(httpClient, o.addr, opts...)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Client for the support dialogue flow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("FLOWCTL_ADDR", "http://localhost:8080"), "flowd base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FLOWCTL_TOKEN"), "bearer token sent with every call")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-call timeout")

	root.AddCommand(
		newChatCmd(opts),
		newStateCmd(opts),
		newResetCmd(opts),
		newForceCmd(opts),
		newCleanupCmd(opts),
		newMetricsCmd(opts),
		newSessionMetricsCmd(opts),
		newTicketsCmd(opts),
		newCloseTicketCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowctl:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
