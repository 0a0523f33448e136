// Package main implements the voyagectl CLI for operating a voyaged server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the voyaged HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voyagectl",
	Short: "CLI for voyaged session operations",
	Long: `voyagectl is a command-line interface for a running voyaged server.
It starts negotiation sessions, records plan decisions, and inspects
session status and transcripts.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8880", "voyaged server URL")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(healthCmd)

	startCmd.Flags().StringVar(&participantsFile, "participants", "", "JSON file with participants (omit to use server defaults)")
	startCmd.Flags().IntVar(&messagesPerVolley, "messages-per-volley", 0, "messages each participant sends per round (0 uses the server default)")
	approveCmd.Flags().StringVar(&participantID, "participant", "", "participant id recording the decision")
	_ = approveCmd.MarkFlagRequired("participant")
	rejectCmd.Flags().StringVar(&participantID, "participant", "", "participant id recording the decision")
	rejectCmd.Flags().StringVar(&feedback, "feedback", "", "why the plan does not work")
	_ = rejectCmd.MarkFlagRequired("participant")
	_ = rejectCmd.MarkFlagRequired("feedback")
}

var (
	participantsFile  string
	messagesPerVolley int
	participantID     string
	feedback          string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a negotiation session",
	Long: `Start a negotiation session and print the first candidate plan.

The call blocks while the agents deliberate and a plan is synthesized.

Examples:
  # Negotiate for the server's configured travelers
  voyagectl start

  # Negotiate for an explicit group
  voyagectl start --participants group.json

  # Shorter rounds for a quick demo
  voyagectl start --messages-per-volley 1`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show session status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/sessions/" + args[0])
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <session-id>",
	Short: "Show the session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/sessions/" + args[0] + "/messages")
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Approve the current plan as one participant",
	Long: `Approve the current candidate plan on behalf of one participant.
When every participant has approved, booking starts.

Examples:
  voyagectl approve 4f1c... --participant alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/sessions/"+args[0]+"/approve",
			map[string]string{"participant_id": participantID})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <session-id>",
	Short: "Reject the current plan with feedback",
	Long: `Reject the current candidate plan on behalf of one participant.
Feedback is required; it seeds the next deliberation round once every
participant has decided.

Examples:
  voyagectl reject 4f1c... --participant alice --feedback "budget too high"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/api/v1/sessions/"+args[0]+"/reject",
			map[string]string{"participant_id": participantID, "feedback": feedback})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete,
			serverURL+"/api/v1/sessions/"+args[0], nil)
		if err != nil {
			return err
		}
		return doRequest(req)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/sessions")
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check voyaged server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/health")
	},
}

func runStart(cmd *cobra.Command, args []string) error {
	body := map[string]any{}
	if participantsFile != "" {
		data, err := os.ReadFile(participantsFile)
		if err != nil {
			return fmt.Errorf("reading participants file: %w", err)
		}
		var participants []json.RawMessage
		if err := json.Unmarshal(data, &participants); err != nil {
			return fmt.Errorf("participants file must be a JSON array: %w", err)
		}
		body["participants"] = participants
	}
	if messagesPerVolley > 0 {
		body["messages_per_volley"] = messagesPerVolley
	}
	return postJSON("/api/v1/sessions", body)
}

// httpClient allows negotiation rounds to run server-side within one call.
var httpClient = &http.Client{Timeout: 10 * time.Minute}

func getJSON(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req)
}

func postJSON(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	// Pretty-print when the body is JSON; pass through otherwise.
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
