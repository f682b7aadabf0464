package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-glkcli/internal/config"
)

var logFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the glkcli debug log",
	Long: `Show the last lines of the debug log: --log if given, else log_file
from the config, else ~/.glkcli/debug.log.

Examples:
  glkcli logs
  glkcli logs -n 200
  glkcli logs -f`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := logPath
		if path == "" {
			path = cfg.LogFile
		}
		if path == "" {
			p, err := config.DebugLogPath()
			if err != nil {
				return err
			}
			path = p
		}

		if !logFollow {
			return tailLogFile(os.Stdout, path, logLines)
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return followLogFile(ctx, os.Stdout, path, logLines)
	},
}

// tailLogFile prints the last n lines from path.
func tailLogFile(w io.Writer, path string, n int) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := readLastLines(f, n)
	if err != nil {
		return err
	}
	return writeLines(w, lines)
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("write log output: %w", err)
		}
	}
	return nil
}

// followLogFile prints the last n lines, then polls for new content until
// ctx is cancelled.
func followLogFile(ctx context.Context, w io.Writer, path string, n int) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := readLastLines(f, n)
	if err != nil {
		return err
	}
	if err := writeLines(w, lines); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	for {
		nr, err := f.Read(buf)
		if nr > 0 {
			if _, werr := w.Write(buf[:nr]); werr != nil {
				return fmt.Errorf("write log output: %w", werr)
			}
		}
		if err != nil && err != io.EOF {
			return err
		}
		if nr == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

func openLog(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("log file not found: %s", path)
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// readLastLines returns the last n lines of f and leaves f positioned at
// its end. A final line still being written comes back without its newline
// so a follower continues it in place.
func readLastLines(f *os.File, n int) ([]string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if n <= 0 {
		_, err := f.Seek(0, io.SeekEnd)
		return nil, err
	}

	ring := make([]string, 0, n)
	next := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if len(ring) < n {
				ring = append(ring, line)
			} else {
				ring[next] = line
				next = (next + 1) % n
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}
