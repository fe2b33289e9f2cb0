package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/core"
	"github.com/driftbox/driftbox/internal/diskspace"
	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathutil"
	"github.com/driftbox/driftbox/internal/progress"
	"github.com/driftbox/driftbox/internal/transfer"
	"github.com/driftbox/driftbox/internal/util/sanitize"
	strutil "github.com/driftbox/driftbox/internal/util/strings"
)

func addFileCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newURLCmd())
}

// folderArg parses an optional remote folder argument; missing means root.
func folderArg(args []string, i int) (models.Path, error) {
	if len(args) <= i {
		return models.Root(), nil
	}
	return models.ParsePath(sanitize.Path(args[i]))
}

// localArg resolves a local file argument to an absolute path.
func localArg(arg string) (string, error) {
	path, err := pathutil.ResolveAbsolutePath(arg)
	if err != nil {
		return "", fmt.Errorf("invalid local path %q: %w", arg, err)
	}
	return path, nil
}

// itemArg splits a remote path into its folder and final name.
func itemArg(arg string) (models.Path, string, error) {
	p, err := models.ParsePath(sanitize.Path(arg))
	if err != nil {
		return nil, "", err
	}
	if p.IsRoot() {
		return nil, "", fmt.Errorf("%q does not name a file or folder", arg)
	}
	return p.Parent(), p.Last(), nil
}

// kindOf reports whether name in p is a file or a folder. Files win when
// both exist.
func kindOf(ctx context.Context, sess *core.Session, p models.Path, name string) (models.Kind, error) {
	_, err := sess.Controller.File(ctx, p, name)
	if err == nil {
		return models.KindFile, nil
	}
	if !metadata.IsNotFound(err) {
		return 0, err
	}
	ok, err := sess.Controller.FolderExists(ctx, p.Child(name))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: no such file or folder", p.Child(name))
	}
	return models.KindFolder, nil
}

// waitForTasks drains the session's progress channel until every task in
// tasks is terminal, rendering events as they arrive. It returns the joined
// failure reasons. If ctx ends first it stops waiting; the tasks still run
// to completion when the session closes.
func waitForTasks(ctx context.Context, app *core.App, sess *core.Session, out io.Writer, tasks ...transfer.Task) error {
	pending := make(map[string]transfer.Task, len(tasks))
	for _, t := range tasks {
		pending[t.ID] = t
	}

	ui := progress.NewTaskUI()
	var failures []error
	handle := func(batch []*events.TaskEvent) {
		ui.Handle(batch)
		for _, ev := range batch {
			t, ok := pending[ev.TaskID]
			if !ok || !ev.IsTerminal() {
				continue
			}
			delete(pending, ev.TaskID)
			if ev.EventType == events.EventTaskFailed {
				failures = append(failures, fmt.Errorf("%s: %w", t.Label(), ev.Err))
			}
		}
	}

	ticker := time.NewTicker(app.Config.PollInterval())
	defer ticker.Stop()
	for len(pending) > 0 {
		select {
		case <-ticker.C:
			sess.Controller.Pump(handle)
		case <-ctx.Done():
			n := int64(len(pending))
			fmt.Fprintf(out, "Stopped waiting; %d %s still running\n", n, strutil.Pluralize("task", n))
			return ctx.Err()
		}
	}
	ui.Wait()
	return errors.Join(failures...)
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [folder]",
		Short: "List a folder (folders first, then files)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := folderArg(args, 0)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				items, err := sess.Controller.List(ctx, p)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, p.Breadcrumb())
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, it := range items {
					switch it.Kind {
					case models.KindFolder:
						fmt.Fprintf(w, "%s/\t\t\t\n", it.Folder.Name)
					case models.KindFile:
						state := "synced"
						if !it.File.Synced {
							state = "unsynced"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.File.Name, strutil.FormatSize(it.File.Size), state, strutil.FormatTime(it.File.UploadedAt))
					}
				}
				return w.Flush()
			})
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				folder, err := sess.Controller.CreateFolder(ctx, parent, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", folder.Path())
				return nil
			})
		},
	}
}

func newUploadCmd() *cobra.Command {
	var (
		name      string
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "upload <local-file> [folder]",
		Short: "Upload a local file into a folder",
		Long: `Upload a local file into a folder (root by default).

If the name is taken, the next free name (report_1.pdf, report_2.pdf, ...)
is offered. Use --yes to accept it without asking.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := folderArg(args, 1)
			if err != nil {
				return err
			}
			local, err := localArg(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				task, err := sess.Controller.Upload(ctx, local, p, sanitize.Name(name), renameConfirmer(out, assumeYes))
				if errors.Is(err, transfer.ErrDeclined) {
					fmt.Fprintln(out, "Upload cancelled")
					return nil
				}
				if err != nil {
					return err
				}
				return waitForTasks(ctx, app, sess, out, task)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Store under this name instead of the local file name")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Accept a suggested name without asking")
	return cmd
}

func newTrackCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "track <local-file> [folder]",
		Short: "Record a local file without uploading it",
		Long: `Record a local file in a folder without uploading its bytes.
The entry stays unsynced until 'driftbox sync' uploads it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := folderArg(args, 1)
			if err != nil {
				return err
			}
			local, err := localArg(args[0])
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				entry, err := sess.Controller.Track(ctx, local, p, sanitize.Name(name))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Tracking %s as %s\n", entry.OriginPath, entry.Parent.Child(entry.Name))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Record under this name instead of the local file name")
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				kind, err := kindOf(ctx, sess, parent, name)
				if err != nil {
					return err
				}
				task, err := sess.Controller.Rename(ctx, parent, name, kind, sanitize.Name(args[1]))
				if err != nil {
					return err
				}
				return waitForTasks(ctx, app, sess, cmd.OutOrStdout(), task)
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file (record and bytes) or a folder record.

Folder contents are removed too only when tree.cascade_delete is enabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				kind, err := kindOf(ctx, sess, parent, name)
				if err != nil {
					return err
				}
				if !assumeYes && !promptYesNo(out, fmt.Sprintf("Delete %s %s?", kind, parent.Child(name))) {
					fmt.Fprintln(out, "Nothing deleted")
					return nil
				}
				task, err := sess.Controller.Delete(ctx, parent, name, kind)
				if err != nil {
					return err
				}
				return waitForTasks(ctx, app, sess, out, task)
			})
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <file> <folder>",
		Short: "Move a file into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			to, err := folderArg(args, 1)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				task, err := sess.Controller.MoveTo(ctx, from, name, to)
				if err != nil {
					return err
				}
				return waitForTasks(ctx, app, sess, cmd.OutOrStdout(), task)
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [folder]",
		Short: "Upload every unsynced file in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := folderArg(args, 0)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				task := sess.Controller.Sync(ctx, p)
				return waitForTasks(ctx, app, sess, cmd.OutOrStdout(), task)
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <file>",
		Short: "Download a file",
		Long: `Download a file's bytes through its signed URL. An expired URL is
regenerated and saved first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = name
			}
			dest, err := localArg(output)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				entry, err := sess.Controller.File(ctx, parent, name)
				if err != nil {
					return err
				}
				return download(ctx, sess, entry, dest, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Local destination (default: the file name in the current directory)")
	return cmd
}

func download(ctx context.Context, sess *core.Session, entry *models.FileEntry, dest string, out io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	if err := diskspace.CheckAvailableSpace(dest, entry.Size, 1.1); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	bar := progress.NewCLIProgress()
	n, err := sess.Fetcher.Download(ctx, entry, f, progress.Func(bar, entry.Name))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		bar.Error(err)
		os.Remove(tmp)
		return err
	}
	bar.Finish()

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", dest, err)
	}
	fmt.Fprintf(out, "✓ Downloaded %s (%s) to %s\n", entry.Name, strutil.FormatSize(n), dest)
	return nil
}

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <file>",
		Short: "Print a valid download link for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name, err := itemArg(args[0])
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, app *core.App, sess *core.Session) error {
				entry, err := sess.Controller.File(ctx, parent, name)
				if err != nil {
					return err
				}
				url, err := sess.Fetcher.FreshURL(ctx, entry)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
}
