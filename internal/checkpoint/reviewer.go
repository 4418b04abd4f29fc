package checkpoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/b2b-content-agent/internal/artifacts"
	"github.com/jonathan/b2b-content-agent/internal/types"
)

// ErrDeferred is returned by a Reviewer that leaves the checkpoint pending.
// The pipeline stops in awaiting_review and can be resumed later.
var ErrDeferred = errors.New("review deferred")

// Presentation is what a reviewer sees for one checkpoint.
type Presentation struct {
	SessionID  string
	Checkpoint types.Checkpoint
	Artifacts  []types.Artifact
}

// Verdict is a reviewer's decision.
type Verdict struct {
	Decision types.Decision
	Feedback string
}

// Reviewer obtains a decision for a presented checkpoint.
type Reviewer interface {
	Review(ctx context.Context, p Presentation) (Verdict, error)
}

// AutoApprover approves every checkpoint without asking.
type AutoApprover struct{}

// Review always approves.
func (AutoApprover) Review(context.Context, Presentation) (Verdict, error) {
	return Verdict{Decision: types.DecisionApprove}, nil
}

// DeferredReviewer leaves every checkpoint pending, for runs where decisions
// arrive later through the review command or the HTTP API.
type DeferredReviewer struct{}

// Review always defers.
func (DeferredReviewer) Review(context.Context, Presentation) (Verdict, error) {
	return Verdict{}, ErrDeferred
}

// PreviewLines is how many lines of each artifact the console shows.
const PreviewLines = 20

// ConsoleReviewer prompts an operator on a terminal.
type ConsoleReviewer struct {
	In        io.Reader
	Out       io.Writer
	ExportDir string // Where "save" writes artifacts; defaults to the working directory

	lines chan string
}

// Review prints a preview of every artifact and reads a decision.
func (r *ConsoleReviewer) Review(ctx context.Context, p Presentation) (Verdict, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	cp := p.Checkpoint
	title := fmt.Sprintf("CHECKPOINT %d: %s", cp.Ordinal, cp.StageName)
	if cp.Track != "" {
		title += " / " + cp.Track
	}
	fmt.Fprintf(out, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintf(out, "%d artifact(s) for review\n", len(p.Artifacts))
	for _, a := range p.Artifacts {
		printPreview(out, a)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}
		fmt.Fprint(out, "\n[a]pprove  [r]evise  re[j]ect  [v]iew full  [s]ave to files  [q]uit for now\n> ")
		line, ok, err := r.readLine(ctx)
		if err != nil {
			return Verdict{}, err
		}
		if !ok {
			return Verdict{}, ErrDeferred
		}

		switch strings.ToLower(line) {
		case "a", "approve":
			return Verdict{Decision: types.DecisionApprove}, nil
		case "r", "revise":
			fmt.Fprint(out, "Feedback for the revision: ")
			feedback, _, err := r.readLine(ctx)
			if err != nil {
				return Verdict{}, err
			}
			return Verdict{Decision: types.DecisionRevise, Feedback: feedback}, nil
		case "j", "reject":
			fmt.Fprint(out, "Reason (optional): ")
			reason, _, err := r.readLine(ctx)
			if err != nil {
				return Verdict{}, err
			}
			return Verdict{Decision: types.DecisionReject, Feedback: reason}, nil
		case "v", "view":
			for _, a := range p.Artifacts {
				fmt.Fprintf(out, "\n--- %s ---\n%s\n", a.ID, a.Content)
			}
		case "s", "save":
			dir := r.ExportDir
			if dir == "" {
				dir = "."
			}
			paths, err := artifacts.Export(filepath.Join(dir, "review_"+p.SessionID), p.Artifacts)
			if err != nil {
				fmt.Fprintf(out, "Save failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Saved %d file(s) under %s\n", len(paths), dir)
		case "q", "quit":
			return Verdict{}, ErrDeferred
		default:
			fmt.Fprintf(out, "Unknown option %q\n", line)
		}
	}
}

// readLine waits for the next input line or for ctx to end. ok is false at
// end of input. A line that arrives after cancellation is discarded.
func (r *ConsoleReviewer) readLine(ctx context.Context) (line string, ok bool, err error) {
	if r.lines == nil {
		r.lines = make(chan string)
		go scanLines(r.In, r.lines)
	}
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok = <-r.lines:
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return strings.TrimSpace(line), ok, nil
}

// scanLines feeds in to lines and closes it at end of input. It outlives a
// cancelled review while blocked on a read.
func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func printPreview(out io.Writer, a types.Artifact) {
	fmt.Fprintf(out, "\n--- %s (%s, v%d) ---\n", a.ID, a.Status, a.Version)
	if !a.HasContent() {
		outcome := a.Provenance.Outcome
		if outcome == "" {
			outcome = "empty"
		}
		fmt.Fprintf(out, "(no content: %s)\n", outcome)
		return
	}
	lines := strings.Split(a.Content, "\n")
	if len(lines) > PreviewLines {
		fmt.Fprintln(out, strings.Join(lines[:PreviewLines], "\n"))
		fmt.Fprintf(out, "... (%d more lines)\n", len(lines)-PreviewLines)
		return
	}
	fmt.Fprintln(out, a.Content)
}
