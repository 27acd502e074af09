package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"imaspy/internal/backend"
	"imaspy/internal/dbentry"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

type convertOptions struct {
	xmlPath    string
	idsNames   []string
	occurrence int
	jobs       int
}

// convertJob is one IDS occurrence to convert.
type convertJob struct {
	name string
	occ  int

	from     string
	nodes    int
	duration time.Duration
}

func (a *app) convertCmd() *cobra.Command {
	o := convertOptions{occurrence: -1}
	cmd := &cobra.Command{
		Use:   "convert <uri_in> [<dd_version>] <uri_out>",
		Short: "Convert the IDSs of a data entry to another Data Dictionary version",
		Long: `Reads every IDS occurrence of the input entry and stores it in a new output
entry, converted to the requested DD version. Give either a DD version or --xml.

Examples:
  imaspy convert imas:sqlite?path=./shot 3.39.0 imas:sqlite?path=./shot_339
  imaspy convert data.nc --xml IDSDef.xml converted.nc --ids core_profiles`,
		Args: func(cmd *cobra.Command, args []string) error {
			if o.xmlPath != "" {
				return cobra.ExactArgs(2)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, target := args[0], args[len(args)-1], ""
			if o.xmlPath == "" {
				target = args[1]
			}
			return a.runConvert(cmd, in, out, target, o)
		},
	}
	cmd.Flags().StringVar(&o.xmlPath, "xml", "", "Convert to the DD defined in this XML file")
	cmd.Flags().StringSliceVar(&o.idsNames, "ids", nil, "Only convert these IDSs (default: all)")
	cmd.Flags().IntVar(&o.occurrence, "occurrence", -1, "Only convert this occurrence (default: all)")
	cmd.Flags().IntVarP(&o.jobs, "jobs", "j", 4, "Number of IDSs converted concurrently")
	return cmd
}

func (a *app) runConvert(cmd *cobra.Command, uriIn, uriOut, target string, o convertOptions) error {
	ctx := cmd.Context()
	if o.jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1, got %d", o.jobs)
	}
	start := time.Now()
	in, err := a.open(ctx, uriIn, backend.ModeRead)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := dbentry.Open(ctx, uriOut, backend.ModeExclusive, dbentry.Options{
		DDVersion: target,
		XMLPath:   o.xmlPath,
		Store:     a.store,
		Config:    a.cfg,
	})
	if err != nil {
		return err
	}
	defer out.Close()

	jobs, err := listJobs(ctx, in, o)
	if err != nil {
		return err
	}
	logger := logging.Get(logging.CategoryCLI)
	logger.Info("converting %d IDS occurrences from %s to DD %s", len(jobs), uriIn, out.DDVersion())

	// put_slice is not used, so puts of different IDSs are independent
	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for _, job := range jobs {
		g.Go(func() error {
			if err := convertOne(gctx, in, out, job); err != nil {
				return fmt.Errorf("%s/%d: %w", job.name, job.occ, err)
			}
			mu.Lock()
			done++
			logger.Debug("[%d/%d] converted %s/%d", done, len(jobs), job.name, job.occ)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t := newTable("IDS", "Occurrence", "From DD", "To DD", "Nodes", "Time")
	total := 0
	for _, job := range jobs {
		total += job.nodes
		t.Row(job.name, strconv.Itoa(job.occ), job.from, out.DDVersion(), humanize.Comma(int64(job.nodes)), job.duration.Round(time.Millisecond).String())
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, t.String())
	summary := fmt.Sprintf("Converted %d IDS occurrences (%s nodes) in %s", len(jobs), humanize.Comma(int64(total)), time.Since(start).Round(time.Millisecond))
	if st, err := os.Stat(out.URI().Path); err == nil && st.Mode().IsRegular() {
		summary += fmt.Sprintf(", wrote %s", humanize.Bytes(uint64(st.Size())))
	}
	fmt.Fprintln(w, summary)
	return nil
}

// listJobs returns the occurrences selected by o, in IDS name order.
func listJobs(ctx context.Context, in *dbentry.Entry, o convertOptions) ([]*convertJob, error) {
	names := in.Factory().Names()
	if len(o.idsNames) > 0 {
		for _, n := range o.idsNames {
			if !slices.Contains(names, n) {
				return nil, fmt.Errorf("unknown IDS %q in DD %s", n, in.DDVersion())
			}
		}
		names = o.idsNames
	}
	var jobs []*convertJob
	for _, name := range names {
		occs, err := in.ListOccurrences(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, occ := range occs {
			if o.occurrence < 0 || occ == o.occurrence {
				jobs = append(jobs, &convertJob{name: name, occ: occ})
			}
		}
	}
	return jobs, nil
}

// convertOne copies one occurrence; the output entry converts it on put.
func convertOne(ctx context.Context, in, out *dbentry.Entry, job *convertJob) error {
	start := time.Now()
	t, err := in.Get(ctx, job.name, dbentry.GetOptions{Occurrence: job.occ, AutoConvert: dbentry.Bool(false)})
	if err != nil {
		return err
	}
	job.from = t.Version()
	if err := out.Put(ctx, t, job.occ); err != nil {
		return err
	}
	_ = ids.Walk(t, ids.IterOptions{LeafOnly: true}, func(ids.Node) error {
		job.nodes++
		return nil
	})
	job.duration = time.Since(start)
	return nil
}
