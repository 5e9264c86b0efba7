package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <object-id>",
		Short: "Get a media object by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	mediaClient, err := newMediaClient()
	if err != nil {
		return err
	}
	defer mediaClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	obj, err := mediaClient.GetObject(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get object: %v", err)
	}

	printObject(cmd.OutOrStdout(), obj)
	return nil
}

func printObject(w io.Writer, obj *domain.MediaObject) {
	fmt.Fprintf(w, "Id: %s\n", obj.ID)
	fmt.Fprintf(w, "Title: %s\n", obj.Title)
	fmt.Fprintf(w, "Owner: %s\n", obj.OwnerID)
	fmt.Fprintf(w, "Category: %s\n", obj.Category)
	fmt.Fprintf(w, "State: %s (%d%%)\n", obj.LifecycleState, obj.ProgressPercent)
	fmt.Fprintf(w, "Sensitivity: %s", obj.Classification.Status)
	if obj.Classification.Reason != "" {
		fmt.Fprintf(w, " - %s", obj.Classification.Reason)
	}
	fmt.Fprintln(w)
	if obj.DurationSeconds != nil {
		fmt.Fprintf(w, "Duration: %.1fs\n", *obj.DurationSeconds)
	}
	if obj.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", obj.URL)
	}
	fmt.Fprintf(w, "Created At: %s\n", obj.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated At: %s\n", obj.UpdatedAt.Format(time.RFC3339))
}

type listCmdParams struct {
	safeOnly bool
	state    string
	category string
	owner    string
}

var listParams = &listCmdParams{}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media objects",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	cmd.Flags().BoolVar(&listParams.safeOnly, "safe-only", false, "Only objects classified safe")
	cmd.Flags().StringVar(&listParams.state, "state", "", "Filter by state (processing, ready, failed)")
	cmd.Flags().StringVar(&listParams.category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&listParams.owner, "owner", "", "Filter by owner id")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	mediaClient, err := newMediaClient()
	if err != nil {
		return err
	}
	defer mediaClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	objs, err := mediaClient.ListObjects(ctx, catalog.Filter{
		SafeOnly: listParams.safeOnly,
		State:    domain.LifecycleState(listParams.state),
		Category: listParams.category,
		OwnerID:  listParams.owner,
	})
	if err != nil {
		return fmt.Errorf("failed to list objects: %v", err)
	}

	out := cmd.OutOrStdout()
	if len(objs) == 0 {
		fmt.Fprintln(out, "No media objects found")
		return nil
	}

	for _, obj := range objs {
		fmt.Fprintf(out, "%s %-10s %3d%% %-8s %s\n",
			obj.ID, obj.LifecycleState, obj.ProgressPercent, obj.Classification.Status, obj.Title)
	}
	return nil
}
