package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askPlaybook  string
	askSession   string
	askTopK      int
	askFollowUps bool
	askSources   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the uploaded playbooks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Ask(cmd.Context(), AskRequest{
			Question:   strings.Join(args, " "),
			PlaybookID: askPlaybook,
			SessionID:  askSession,
			TopK:       askTopK,
			FollowUps:  askFollowUps,
		})
		if err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), resp, askSources)
		return nil
	},
}

func printAnswer(w io.Writer, resp *AskResponse, sources bool) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintf(w, "\nconfidence: %.2f  tokens: %d\n", resp.Confidence, resp.TokensUsed)
	if sources {
		for i, p := range resp.Passages {
			loc := ""
			if p.PageNumber > 0 {
				loc = fmt.Sprintf(" p.%d", p.PageNumber)
			}
			fmt.Fprintf(w, "\n[%d] %s%s (%s, %.2f)\n%s\n", i+1, p.PlaybookID, loc, p.ChunkType, p.Score, p.Highlighted)
		}
	}
	if len(resp.FollowUps) > 0 {
		fmt.Fprintln(w, "\nYou might also ask:")
		for _, q := range resp.FollowUps {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
}

func init() {
	askCmd.Flags().StringVar(&askPlaybook, "playbook", "", "restrict the search to one playbook id")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to keep conversation history on the server")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of passages to retrieve (server default when 0)")
	askCmd.Flags().BoolVar(&askFollowUps, "follow-ups", true, "ask the server for follow-up questions")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the supporting passages")
	rootCmd.AddCommand(askCmd)
}
