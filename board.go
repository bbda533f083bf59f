package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"taskboard/internal/client"
	"taskboard/internal/drag"
	"taskboard/internal/models"
	"taskboard/internal/reconcile"
	"taskboard/internal/reorder"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user (development)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required")
		}
		tok, err := newAuth(cfg).Issue(tokenUser)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Inspect and rearrange boards on a running server",
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your boards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		boards, err := newClient().ListBoards(cmd.Context())
		if err != nil {
			return err
		}
		for _, b := range boards {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", b.ID, b.Name)
		}
		return nil
	},
}

var boardSnapshotCmd = &cobra.Command{
	Use:   "snapshot [board-id]",
	Short: "Print a board with its lists and tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := newClient().Snapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap, time.Now())
		return nil
	},
}

var boardMoveCmd = &cobra.Command{
	Use:   "move [board-id] [task-id] [list-id] [index]",
	Short: "Move a task to a position in a list",
	Long: `Moves a task and shows the board as soon as the move is applied locally,
then again once the server's snapshot confirms or rejects it.

Without an index the task goes to the end of the list.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		boardID, taskID, listID := args[0], args[1], args[2]
		index := -1
		if len(args) == 4 {
			i, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[3], err)
			}
			index = i
		}

		return runMove(cmd.Context(), cmd.OutOrStdout(), boardID, func(snap models.Snapshot) (reorder.Move, bool) {
			li := snap.FindList(listID)
			if li < 0 {
				return reorder.Move{}, false
			}
			i := index
			if i < 0 {
				// past the end; clamped to the last position
				i = len(snap.Lists[li].Tasks)
			}
			return reorder.Move{TaskID: taskID, ListID: listID, Index: i}, true
		})
	},
}

var (
	dropOnTask string
	dropOnList string
)

var boardDropCmd = &cobra.Command{
	Use:   "drop [board-id] [task-id]",
	Short: "Drag a task and drop it on another task or list",
	Long: `Resolves the drop the way the board UI does: dropping on a task takes
that task's place, dropping on another list appends to it.

Example:
  taskboard board drop <board> <task> --on-task <other-task>`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target *drag.Target
		switch {
		case dropOnTask != "" && dropOnList != "":
			return errors.New("use only one of --on-task and --on-list")
		case dropOnTask != "":
			target = drag.TaskTarget(dropOnTask)
		case dropOnList != "":
			target = drag.ListTarget(dropOnList)
		default:
			return errors.New("one of --on-task or --on-list is required")
		}

		taskID := args[1]
		return runMove(cmd.Context(), cmd.OutOrStdout(), args[0], func(snap models.Snapshot) (reorder.Move, bool) {
			var m drag.Machine
			m.Start(taskID)
			m.Over(target)
			return m.Release(snap)
		})
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID to put in the token subject")
	_ = tokenCmd.MarkFlagRequired("user")

	boardDropCmd.Flags().StringVar(&dropOnTask, "on-task", "", "task to drop onto")
	boardDropCmd.Flags().StringVar(&dropOnList, "on-list", "", "list to drop onto")

	boardCmd.AddCommand(boardListCmd, boardSnapshotCmd, boardMoveCmd, boardDropCmd)
}

func newClient() *client.Client {
	return client.New(cfg.Client.BaseURL, cfg.Client.Token,
		client.WithHTTPClient(&http.Client{Timeout: cfg.GetClientTimeout()}),
		client.WithLogger(logger.Named("client")))
}

// runMove streams boardID through a reconciler, applies the move resolve
// picks on the first snapshot, and prints the board after each phase.
func runMove(ctx context.Context, w io.Writer, boardID string, resolve func(models.Snapshot) (reorder.Move, bool)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	views := make(chan models.Snapshot, 16)
	rejected := make(chan error, 1)
	rec := reconcile.New(newClient(), reconcile.Options{
		Logger: logger.Named("reconcile"),
		OnChange: func(s models.Snapshot) {
			select {
			case views <- s:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case rejected <- err:
			default:
			}
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rec.Run(runCtx, newClient(), boardID) }()

	timeout := cfg.GetClientTimeout()
	var snap models.Snapshot
	select {
	case snap = <-views:
	case err := <-done:
		if err == nil {
			err = errors.New("stream closed before the first snapshot")
		}
		return err
	case <-time.After(timeout):
		return fmt.Errorf("no snapshot for board %s within %s", boardID, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	m, ok := resolve(snap)
	if !ok || !rec.Move(ctx, m) {
		fmt.Fprintln(w, "nothing to move")
		printSnapshot(w, snap, time.Now())
		return nil
	}

	fmt.Fprintln(w, "-- applied locally")
	view, _ := rec.View()
	printSnapshot(w, view, time.Now())

	rec.Wait()
	select {
	case err := <-rejected:
		fmt.Fprintf(w, "-- rejected: %v\n", err)
		view, _ = rec.View()
		printSnapshot(w, view, time.Now())
		return err
	default:
	}

	// Wait for the store's snapshot to take over from the overlay.
	deadline := time.After(timeout)
	for rec.Phase() != reconcile.Synced {
		select {
		case <-views:
		case <-deadline:
			fmt.Fprintln(w, "-- accepted, confirmation still pending")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fmt.Fprintln(w, "-- confirmed")
	printSnapshot(w, rec.Authoritative(), time.Now())
	return nil
}

func printSnapshot(w io.Writer, snap models.Snapshot, now time.Time) {
	fmt.Fprintf(w, "%s (%s)\n", snap.Board.Name, snap.Board.ID)
	for _, l := range snap.Lists {
		fmt.Fprintf(w, "\n  %s [%d]\n", l.Name, len(l.Tasks))
		for _, t := range l.Tasks {
			check := " "
			if t.Completed {
				check = "x"
			}
			line := fmt.Sprintf("    %d. [%s] %s  (%s, %s)", t.Order, check, t.Title, t.ID, t.Priority)
			if _, msg := t.DeadlineStatus(now); msg != "" {
				line += "  due: " + msg
			}
			fmt.Fprintln(w, line)
		}
	}
}
