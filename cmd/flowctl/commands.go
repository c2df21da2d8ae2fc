package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/voicetyped/supportflow/internal/flow/flowrpc"
)

func newChatCmd(opts *globalOptions) *cobra.Command {
	var sessionID, userID, platform string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold a conversation with the flow from the terminal",
		Long: `Reads one message per line from stdin and prints the reply.
An empty session id starts a new session. Type /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				sessionID = xid.New().String()
			}
			client := opts.client()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s\n", sessionID)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "/quit" {
					return nil
				}
				resp, err := client.ProcessTurn(cmd.Context(), connect.NewRequest(&flowrpc.ProcessTurnRequest{
					UserID:    userID,
					SessionID: sessionID,
					Platform:  platform,
					Message:   line,
				}))
				if err != nil {
					return err
				}
				printTurn(cmd, resp.Msg)
				if !resp.Msg.ShouldContinue {
					return nil
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id")
	cmd.Flags().StringVar(&platform, "platform", "web", "platform tag (web, telegram, whatsapp, vk, alice, viber)")
	return cmd
}

func printTurn(cmd *cobra.Command, r *flowrpc.ProcessTurnResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[%s] %s\n", r.CurrentState, r.Response)
	for _, q := range r.NextQuestions {
		fmt.Fprintf(out, "  > %s\n", q)
	}
	if r.RequiresHuman {
		fmt.Fprintf(out, "  (operator requested: %s, priority %s)\n", r.EscalationReason, r.Priority)
	}
}

func newStateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state SESSION_ID",
		Short: "Print the session context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().GetSessionState(cmd.Context(),
				connect.NewRequest(&flowrpc.GetSessionStateRequest{SessionID: args[0]}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg.Session)
		},
	}
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset SESSION_ID",
		Short: "Clear a session back to a fresh start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().ResetSession(cmd.Context(),
				connect.NewRequest(&flowrpc.ResetSessionRequest{SessionID: args[0]}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg)
		},
	}
}

func newForceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force SESSION_ID STATE",
		Short: "Move a session to a state, bypassing the transition rules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().ForceStateTransition(cmd.Context(),
				connect.NewRequest(&flowrpc.ForceStateTransitionRequest{SessionID: args[0], State: args[1]}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg)
		},
	}
}

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop sessions idle for longer than --minutes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().CleanupInactiveSessions(cmd.Context(),
				connect.NewRequest(&flowrpc.CleanupInactiveSessionsRequest{MaxInactiveMinutes: minutes}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg)
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 30, "idle threshold in minutes")
	return cmd
}

func newMetricsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print flow-wide metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().GetFlowMetrics(cmd.Context(),
				connect.NewRequest(&flowrpc.GetFlowMetricsRequest{}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg.Metrics)
		},
	}
}

func newSessionMetricsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session-metrics SESSION_ID",
		Short: "Print metrics for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().GetSessionMetrics(cmd.Context(),
				connect.NewRequest(&flowrpc.GetSessionMetricsRequest{SessionID: args[0]}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg.Metrics)
		},
	}
}

func newTicketsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tickets [LIMIT]",
		Short: "List open hand-off tickets, most urgent first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var limit int
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid limit %q", args[0])
				}
				limit = n
			}
			resp, err := opts.client().ListOpenTickets(cmd.Context(),
				connect.NewRequest(&flowrpc.ListOpenTicketsRequest{Limit: limit}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg.Tickets)
		},
	}
}

func newCloseTicketCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close-ticket TICKET_ID",
		Short: "Close a hand-off ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.client().CloseTicket(cmd.Context(),
				connect.NewRequest(&flowrpc.CloseTicketRequest{TicketID: args[0]})); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
			return nil
		},
	}
}
