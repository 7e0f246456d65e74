package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:3000"

type options struct {
	server string
	out    io.Writer
}

func (o *options) client() (*client, error) {
	return newClient(o.server)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	defServer := os.Getenv(serverEnv)
	if defServer == "" {
		defServer = defaultServer
	}

	root := &cobra.Command{
		Use:   "batchctl",
		Short: "Client for the imagebatch server",
		Long: `batchctl submits prompt lists to an imagebatch server, follows the
progress of their sessions and downloads the generated images as a zip.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", defServer, "imagebatch server base URL")

	root.AddCommand(newSubmitCmd(opts), newStatusCmd(opts), newDownloadCmd(opts))
	return root
}

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		file      string
		batchSize int
		wait      bool
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit --file PROMPTS",
		Short: "Submit a prompt file, one prompt per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := readPrompts(file)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			id, err := c.Submit(cmd.Context(), prompts, batchSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Submitted %d prompts as session %s\n", len(prompts), id)

			if !wait {
				return nil
			}
			snap, err := waitForSession(cmd.Context(), c, id, interval, opts.out)
			if err != nil {
				return err
			}
			printSnapshot(opts.out, snap)
			if snap.Status == session.StatusError {
				return fmt.Errorf("session %s failed: %s", id, snap.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one prompt per line (- for stdin)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "prompts per batch (server default when unset)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the session to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "status polling interval with --wait")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status SESSION_ID",
		Short: "Show the progress of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			snap, err := c.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			printSnapshot(opts.out, snap)
			return nil
		},
	}
}

func newDownloadCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download SESSION_ID",
		Short: "Download the images of a finished session as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("ai-images-%s.zip", id)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			n, err := downloadTo(cmd.Context(), c, id, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Saved %s (%d bytes)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default ai-images-<id>.zip)")
	return cmd
}

// parseSessionID rejects arguments that cannot name a session before any
// request is made.
func parseSessionID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session ID %q: %w", arg, err)
	}
	return id, nil
}

// readPrompts returns the non-blank lines of path, trimmed.
func readPrompts(path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open prompt file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var prompts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no prompts in %s", path)
	}
	return prompts, nil
}

// waitForSession polls until the session is terminal, printing each batch
// change.
func waitForSession(ctx context.Context, c *client, id uuid.UUID, interval time.Duration, out io.Writer) (session.Snapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastBatch := -1
	for {
		snap, err := c.Status(ctx, id)
		if err != nil {
			return session.Snapshot{}, err
		}
		if snap.CurrentBatch != lastBatch && snap.TotalBatches > 0 {
			lastBatch = snap.CurrentBatch
			fmt.Fprintf(out, "Batch %d/%d\n", snap.CurrentBatch, snap.TotalBatches)
		}
		if snap.Status.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// downloadTo writes the bundle next to path first and renames it into place,
// so a failed download leaves no partial file.
func downloadTo(ctx context.Context, c *client, id uuid.UUID, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".batchctl-*.zip")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := c.Download(ctx, id, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}

func printSnapshot(out io.Writer, snap session.Snapshot) {
	succeeded, failed := snap.Counts()
	fmt.Fprintf(out, "Session %s: %s (batch %d/%d, %d succeeded, %d failed)\n",
		snap.ID, snap.Status, snap.CurrentBatch, snap.TotalBatches, succeeded, failed)
	if snap.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", snap.Error)
	}

	indexes := make([]int, 0, len(snap.Progress))
	for i := range snap.Progress {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTATUS\tRETRIES\tPROMPT")
	for _, i := range indexes {
		p := snap.Progress[i]
		prompt := ""
		if i < len(snap.Prompts) {
			prompt = truncate(snap.Prompts[i], 60)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, p.Status, p.RetryCount, prompt)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
