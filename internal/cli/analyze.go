package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vigilstream/internal/vigil/auth"
	"vigilstream/internal/vigil/classifier"
	"vigilstream/internal/vigil/domain"
)

var denylist []string

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <title> [description]",
		Short: "Run the content classifier locally",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			verdict := classifier.NewKeyword(denylist).Classify(args[0], description)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (score %.2f): %s\n", verdict.Status, verdict.Score, verdict.Reason)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&denylist, "denylist", classifier.DefaultDenylist, "Terms that flag content")
	return cmd
}

var isOwner bool

func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <role> <action>",
		Short: "Evaluate the authorization policy",
		Long: "Evaluate the authorization policy for a role and action. With no arguments, " +
			"print the whole decision table.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printPolicyTable(out)
				return nil
			}

			// unknown roles are passed through and denied by the policy
			role, _ := domain.ParseRole(args[0])
			fmt.Fprintln(out, auth.Decide(role, isOwner, domain.Action(args[1])))
			return nil
		},
	}

	cmd.Flags().BoolVar(&isOwner, "owner", false, "Caller owns the object")
	return cmd
}

func printPolicyTable(out io.Writer) {
	fmt.Fprintf(out, "%-12s", "action")
	for _, role := range auth.Roles() {
		fmt.Fprintf(out, " %-8s", role)
	}
	fmt.Fprintf(out, " %-8s\n", "owner")

	for _, action := range auth.Actions() {
		fmt.Fprintf(out, "%-12s", action)
		for _, role := range auth.Roles() {
			fmt.Fprintf(out, " %-8s", auth.Decide(role, false, action))
		}
		// the owner column is an editor acting on their own object
		fmt.Fprintf(out, " %-8s\n", auth.Decide(domain.RoleEditor, true, action))
	}
}
