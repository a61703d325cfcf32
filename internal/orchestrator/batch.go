package orchestrator

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// BatchResult is the outcome of one request in a batch. Exactly one of
// Report and Err is set.
type BatchResult struct {
	Request Request
	Report  *pipeline.RunReport
	Err     error
}

// RunBatch runs every request with at most parallelism runs in flight.
// A failed run does not stop the others; results keep the input order.
// Cancelling ctx stops runs that have not started yet.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []Request, parallelism int) []BatchResult {
	if parallelism < 1 {
		parallelism = 1
	}
	results := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, req := range reqs {
		i, req := i, req
		results[i].Request = req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			report, err := o.RunRepair(gctx, req)
			results[i].Report = report
			results[i].Err = err
			if err != nil {
				o.log.Warn("batch run failed", zap.String("repo", req.RepoURL), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// batchFile is the YAML layout of a batch file.
type batchFile struct {
	Runs []Request `yaml:"runs"`
}

// LoadBatch reads a batch file of the form:
//
//	runs:
//	  - repo_url: https://github.com/acme/calc.git
//	    team: Code Warriors
//	    leader: Jane Doe
func LoadBatch(path string) ([]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing batch YAML: %w", err)
	}
	if len(bf.Runs) == 0 {
		return nil, fmt.Errorf("batch file %s lists no runs", path)
	}
	for i, r := range bf.Runs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
		}
	}
	return bf.Runs, nil
}
