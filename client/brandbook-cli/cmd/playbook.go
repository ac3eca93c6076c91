package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listMine bool

var uploadCmd = &cobra.Command{
	Use:   "upload [file-path]",
	Short: "Upload a brand guideline document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		res, err := newClient().Upload(cmd.Context(), args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\nplaybook_id: %v\nchunks: %v\ntokens: %v\n",
			res["message"], res["playbook_id"], res["chunk_count"], res["tokens_used"])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded playbooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		playbooks, err := newClient().List(cmd.Context(), listMine)
		if err != nil {
			return err
		}
		if len(playbooks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No playbooks.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tTYPE\tCHUNKS\tUPLOADED BY\tCREATED")
		for _, p := range playbooks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", p.ID, p.Filename, p.FileType, p.ChunkCount, p.UploadedBy, p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [playbook-id]",
	Short: "Delete a playbook you uploaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary [playbook-id]",
	Short: "Show a playbook synopsis and its key sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := newClient().Summary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sum.Summary)
		if len(sum.KeySections) > 0 {
			fmt.Fprintf(out, "\nKey sections: %s\n", strings.Join(sum.KeySections, ", "))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage since the server started",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listMine, "mine", false, "only playbooks you uploaded")
	rootCmd.AddCommand(uploadCmd, listCmd, deleteCmd, summaryCmd, statsCmd)
}
