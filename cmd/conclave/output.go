package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sweetpotato0/ai-conclave/runner"
	"github.com/sweetpotato0/ai-conclave/workflow"
)

func printResult(w io.Writer, res *workflow.Result) {
	fmt.Fprintf(w, "Run %s (%d calls, %d tokens, %s)\n\n", res.RunID, res.TotalCalls,
		res.Usage.Tokens(), res.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tNAME\tCALLS\tESCALATIONS\tFINDINGS\tCONFLICTS")
	for _, s := range res.Stages {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n", s.Stage, s.Name, s.CallCount, s.Escalations,
			len(s.Findings), len(s.Conflicts))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nPlan change %.0f%%", res.ChangePercentage*100)
	if res.AlignmentTriggered {
		fmt.Fprint(w, " (alignment check ran)")
	}
	fmt.Fprintln(w)

	if len(res.Findings) > 0 {
		fmt.Fprintln(w, "\nFindings:")
		for _, f := range res.Findings {
			fmt.Fprintf(w, "  %s [%s] %s\n", f.ID, f.Impact, f.Description)
		}
	}
	if len(res.Conflicts) > 0 {
		fmt.Fprintln(w, "\nConflicts:")
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %s %s vs %s (%s, resolved by %s): %s\n", c.ID, c.FindingA.ID, c.FindingB.ID,
				c.Type, c.ResolvedBy, c.Resolution)
		}
	}
	if len(res.Opportunities) > 0 {
		fmt.Fprintln(w, "\nOpportunities:")
		for _, o := range res.Opportunities {
			fmt.Fprintf(w, "  %s %s\n", o.ID, o.Description)
		}
	}

	fmt.Fprintf(w, "\nFinal plan:\n%s\n", res.FinalArtifact)
	if impl := res.Implementation; impl != nil {
		fmt.Fprintf(w, "\nImplementation:\n%s\n", impl.Recommendation)
		if impl.CodeOutput != "" {
			fmt.Fprintf(w, "\n%s\n", impl.CodeOutput)
		}
	}
	fmt.Fprintf(w, "\nSigned off: %v\n", res.SignOff.Approved)
}

func printBatch(w io.Writer, results []*runner.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tCALLS\tDURATION\tRUN")
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(tw, "%s\tfailed: %v\t-\t%s\t-\n", r.TaskID, r.Error, r.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(tw, "%s\tsigned off\t%d\t%s\t%s\n", r.TaskID, r.Output.TotalCalls,
			r.Duration.Round(time.Millisecond), r.Output.RunID)
	}
	tw.Flush()
}
