package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"

	"vigilstream/internal/vigil/domain"
)

type watchCmdParams struct {
	plain bool
}

var watchParams = &watchCmdParams{}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [object-id]",
		Short: "Watch processing progress",
		Long: "Watch one object's progress until it reaches a terminal state, or with no " +
			"object id, watch terminal events and deletions of every object.",
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().BoolVar(&watchParams.plain, "plain", false, "Print one line per event instead of the interactive view")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	objectID, topic := "", domain.GlobalTopic
	if len(args) == 1 {
		objectID = args[0]
		topic = domain.ObjectTopic(objectID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mediaClient, err := newMediaClient()
	if err != nil {
		return err
	}
	defer mediaClient.Close()

	if watchParams.plain {
		return streamError(ctx, mediaClient.Watch(ctx, topic, func(ev domain.Event) error {
			printEvent(cmd.OutOrStdout(), ev)
			return nil
		}))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan tea.Msg, 16)
	go func() {
		err := mediaClient.Watch(ctx, topic, func(ev domain.Event) error {
			select {
			case messages <- eventMsg{event: ev}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case messages <- streamEndMsg{err: streamError(ctx, err)}:
		case <-ctx.Done():
		}
	}()

	final, err := tea.NewProgram(newWatchModel(objectID, messages), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

// streamError drops errors caused by our own cancellation.
func streamError(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if s, ok := status.FromError(err); ok {
		return fmt.Errorf("stream error: %v", s.Message())
	}
	return fmt.Errorf("error receiving stream: %v", err)
}

func printEvent(w io.Writer, ev domain.Event) {
	ts := ev.Timestamp.Format(time.TimeOnly)
	switch {
	case ev.Deleted:
		fmt.Fprintf(w, "%s %s deleted\n", ts, ev.ObjectID)
	case ev.Classification != nil:
		fmt.Fprintf(w, "%s %s %3d%% %s %s (%.2f)\n", ts, ev.ObjectID, ev.ProgressPercent, ev.LifecycleState,
			ev.Classification.Status, ev.Classification.Score)
	default:
		fmt.Fprintf(w, "%s %s %3d%% %s %s\n", ts, ev.ObjectID, ev.ProgressPercent, ev.LifecycleState, ev.Message)
	}
}
