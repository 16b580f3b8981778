package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fim-go/internal/crawler"
	"fim-go/internal/fim"
)

// progressSpinner shows walk progress on an interactive stderr. A nil
// *progressSpinner is valid and does nothing.
type progressSpinner struct {
	s  *spinner.Spinner
	op string
}

func newProgressSpinner(w io.Writer, operation string) *progressSpinner {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + operation + ": starting"
	return &progressSpinner{s: s, op: operation}
}

func (p *progressSpinner) start() {
	if p != nil {
		p.s.Start()
	}
}

func (p *progressSpinner) stop() {
	if p != nil {
		p.s.Stop()
	}
}

func (p *progressSpinner) update(st crawler.Stats) {
	p.s.Lock()
	defer p.s.Unlock()
	p.s.Suffix = fmt.Sprintf(" %s: %s entries, %s hashed, %s skipped",
		p.op, humanize.Comma(st.Entries), humanize.IBytes(uint64(st.Bytes)), humanize.Comma(st.Errors))
}

func commaCount(n int64) string {
	return humanize.Comma(n)
}

func printCounts(cmd *cobra.Command, operation string, c fim.Counts) {
	w := cmd.OutOrStdout()
	switch operation {
	case "create":
		fmt.Fprintf(w, "Recorded %s entries\n", humanize.Comma(c.Added))
	case "update":
		fmt.Fprintf(w, "Processed %s entries: %s added, %s changed, %s removed\n",
			humanize.Comma(c.Processed), humanize.Comma(c.Added), humanize.Comma(c.Changed), humanize.Comma(c.Removed))
	default:
		fmt.Fprintf(w, "Checked %s entries: %s new, %s changed, %s missing\n",
			humanize.Comma(c.Processed), humanize.Comma(c.Added), humanize.Comma(c.Changed), humanize.Comma(c.Removed))
	}
}

func printRun(cmd *cobra.Command, r *fim.Run) {
	duration := "-"
	if d := r.Duration(); d > 0 {
		duration = d.Truncate(time.Millisecond).String()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "#%d  %-7s  %s (%s)  %-7s  %8s  +%s ~%s -%s  %s\n",
		r.Seq,
		r.Operation,
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		humanize.Time(r.StartedAt),
		r.Status,
		duration,
		humanize.Comma(r.Counts.Added),
		humanize.Comma(r.Counts.Changed),
		humanize.Comma(r.Counts.Removed),
		r.Roots,
	)
}

func sizeOf(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.IBytes(uint64(info.Size()))
}

// readPassphrase prompts on stderr and reads without echo from the
// terminal on stdin.
func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("a terminal is required to read the passphrase")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

func readNewPassphrase(cmd *cobra.Command) (string, error) {
	pass, err := readPassphrase(cmd, "New passphrase: ")
	if err != nil {
		return "", err
	}
	if pass == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	confirm, err := readPassphrase(cmd, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if pass != confirm {
		return "", fmt.Errorf("passphrases do not match")
	}
	return pass, nil
}
