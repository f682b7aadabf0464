package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wethinkt/go-glkcli/internal/config"
)

// FormatSessions lists live launcher sessions.
func FormatSessions(w io.Writer, styles Styles, records []config.SessionRecord, now time.Time) error {
	if len(records) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No games running."))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		styles.Header.Render("GAME"),
		styles.Header.Render("MODE"),
		styles.Header.Render("PID"),
		styles.Header.Render("INTERPRETER"),
		styles.Header.Render("STARTED"))
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			styles.Name.Render(r.Title),
			r.Mode,
			r.PID,
			r.ChildPID,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"))
	}
	return tw.Flush()
}
