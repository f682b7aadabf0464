package cli

import (
	"fmt"
	"io"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

// FsckResult summarizes a store check.
type FsckResult struct {
	Games   int
	Checked int
	Corrupt int
	Cleaned int
}

// Fsck sweeps crash debris from each game and verifies every remaining
// checkpoint against its manifest. Corrupt checkpoints are reported, not
// deleted.
func Fsck(w io.Writer, store *checkpoint.Store, styles Styles, gameIDs []string) (FsckResult, error) {
	var res FsckResult
	for _, gameID := range gameIDs {
		res.Games++
		report, err := store.Sweep(gameID)
		if err != nil {
			return res, err
		}
		for _, dir := range report.Staging {
			fmt.Fprintf(w, "%s: removed unfinished dump %s\n", gameID, dir)
		}
		for _, dir := range report.Orphans {
			fmt.Fprintf(w, "%s: removed unindexed images %s\n", gameID, dir)
		}
		for _, cp := range report.Missing {
			fmt.Fprintf(w, "%s: dropped %s (%s), images were missing\n", gameID, cp.Name, ShortID(cp.ID))
		}
		res.Cleaned += len(report.Staging) + len(report.Orphans) + len(report.Missing)

		cps, err := store.List(gameID)
		if err != nil {
			return res, err
		}
		for _, cp := range cps {
			res.Checked++
			if err := store.Verify(cp); err != nil {
				res.Corrupt++
				fmt.Fprintf(w, "%s: %s %s (%s): %s\n", gameID, styles.Bad.Render("CORRUPT"), cp.Name, ShortID(cp.ID), apperrors.CodeOf(err).Summary())
			}
		}
	}

	status := styles.OK.Render("ok")
	if res.Corrupt > 0 {
		status = styles.Bad.Render(fmt.Sprintf("%d corrupt", res.Corrupt))
	}
	fmt.Fprintf(w, "%d games, %d checkpoints checked, %d cleaned up: %s\n", res.Games, res.Checked, res.Cleaned, status)
	return res, nil
}
