// Command evocore drives a directed-evolution campaign from the shell:
// variant registration, round lifecycle transitions, label ingestion and
// archive export. Storage and archive backends are selected through the
// EVOCORE_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"evocore/internal/blob"
	"evocore/internal/core"
	"evocore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "evocore:", err)
		exitFunc(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: evocore <command> [flags]

commands:
  root      register a campaign root sequence
  round     create a round
  status    derive and print a round's status
  generate  propose a candidate library for a round
  select    choose the measured subset of a round's candidates
  labels    ingest a measurement CSV for a round
  commit    seal a fully labeled round
  reset     roll an unlabeled round back to ready
  export    write a round's measured library as FASTA
  archive   export a committed round to the archive store
  stats     print campaign library statistics`)
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return fmt.Errorf("missing command")
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch args[0] {
	case "root":
		return cmdRoot(ctx, svc, args[1:], out)
	case "round":
		return cmdRound(ctx, svc, args[1:], out)
	case "status":
		return cmdStatus(ctx, svc, args[1:], out)
	case "generate":
		return cmdGenerate(ctx, svc, args[1:], out)
	case "select":
		return cmdSelect(ctx, svc, args[1:], out)
	case "labels":
		return cmdLabels(ctx, svc, args[1:], out)
	case "commit":
		return cmdCommit(ctx, svc, args[1:], out)
	case "reset":
		return cmdReset(ctx, svc, args[1:], out)
	case "export":
		return cmdExport(ctx, svc, args[1:], out)
	case "archive":
		return cmdArchive(ctx, svc, args[1:], out)
	case "stats":
		return cmdStats(ctx, svc, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func openService() (*core.Service, error) {
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return core.NewService(store), nil
}

func cmdRoot(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("root", flag.ContinueOnError)
	sequence := fs.String("sequence", "", "root sequence (required)")
	id := fs.String("id", "", "explicit variant id (default: content hash)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, _, err := svc.CreateRootVariant(ctx, *sequence, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created root %s (%d aa)\n", v.ID, len(v.Sequence))
	return nil
}

func cmdRound(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("round", flag.ContinueOnError)
	index := fs.Int("index", -1, "round index (required)")
	labels := fs.String("expect", "", "comma-separated label names required for completion")
	notes := fs.String("notes", "", "free-form notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	round := domain.Round{Index: *index, Notes: *notes, ExpectedLabels: splitList(*labels)}
	created, _, err := svc.CreateRound(ctx, round)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created round %d (%s)\n", created.Index, created.Status)
	return nil
}

func cmdStatus(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := svc.RoundStatus(ctx, *index)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d: %s\n", *index, status)
	if status == domain.StatusSelected {
		missing, err := svc.MissingLabels(ctx, *index)
		if err != nil {
			return err
		}
		for id, names := range missing {
			fmt.Fprintf(out, "  missing %s: %s\n", id, strings.Join(names, ","))
		}
	}
	return nil
}

func cmdGenerate(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	parent := fs.String("parent", "", "parent variant id (required)")
	positions := fs.String("positions", "", "comma-separated 1-based positions to saturate (required)")
	alphabet := fs.String("alphabet", "", "substitution alphabet (default: 20 residues)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := parsePositions(*positions)
	if err != nil {
		return err
	}
	gen := core.SiteSaturationGenerator{ParentID: *parent, Positions: pos, Alphabet: *alphabet}
	lib, _, err := svc.GenerateLibrary(ctx, *index, gen)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d: %d candidates\n", *index, lib.Len())
	return nil
}

func cmdSelect(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	n := fs.Int("n", 0, "sample size for top/random selection (0 selects all)")
	label := fs.String("by", "", "rank by this label's mean value")
	seed := fs.Int64("seed", 0, "seed for random selection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var sel core.Selector
	switch {
	case *n <= 0:
		sel = core.AllSelector{}
	case *label != "":
		sel = core.TopSelector{LabelName: *label, N: *n}
	default:
		sel = core.RandomSelector{N: *n, Seed: *seed}
	}
	lib, _, err := svc.SelectLibrary(ctx, *index, sel)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d: selected %d of the candidates (%s)\n", *index, lib.Len(), sel.Name())
	return nil
}

func cmdLabels(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("labels", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	file := fs.String("file", "", "CSV file with variant_id,name,value columns (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	labels, err := core.ReadLabels(r)
	if err != nil {
		return err
	}
	round, _, err := svc.SetLabels(ctx, *index, labels)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d: %d/%d labeled (%s)\n", round.Index, round.LabeledSize, round.Size, round.Status)
	return nil
}

func cmdCommit(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	round, _, err := svc.CommitRound(ctx, *index)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d committed at %s\n", round.Index, round.EndTime.Format("2006-01-02 15:04:05"))
	return nil
}

func cmdReset(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	round, _, err := svc.ResetRound(ctx, *index)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "round %d reset (%s)\n", round.Index, round.Status)
	return nil
}

func cmdExport(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	file := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lib, err := svc.ExperimentLibrary(ctx, *index)
	if err != nil {
		return err
	}
	graph, err := svc.Graph(ctx)
	if err != nil {
		return err
	}
	w := out
	if *file != "" {
		f, err := os.Create(*file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return core.WriteFASTA(w, graph, lib)
}

func cmdArchive(ctx context.Context, svc *core.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	index := fs.Int("round", -1, "round index (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	archive, err := svc.ArchiveRound(ctx, *index, store)
	if err != nil {
		return err
	}
	for _, info := range archive.Objects {
		fmt.Fprintf(out, "archived %s (%d bytes)\n", info.Key, info.Size)
	}
	return nil
}

func cmdStats(ctx context.Context, svc *core.Service, out io.Writer) error {
	stats, err := svc.Statistics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "variants: %d\nlabeled: %d\nunlabeled: %d\n", stats.Total, stats.Labeled, stats.Unlabeled)
	return nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositions(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one position required")
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid position %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
