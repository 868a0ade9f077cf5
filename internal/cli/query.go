package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/filter"
	"github.com/roach88/strata/internal/queryir"
)

// QueryFlags holds the ordering and paging flags shared by fetch and delete.
type QueryFlags struct {
	Sort      []string // field, or -field for descending
	Limit     int
	Offset    int
	BatchSize int
}

func (q *QueryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&q.Sort, "sort", nil, "sort keys in priority order; prefix with - for descending")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of records (0 = unlimited)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "number of records to skip")
	cmd.Flags().IntVar(&q.BatchSize, "batch-size", 0, "backend fetch batch size (0 = single batch)")
}

// BuildRequest turns a kind, an optional clause and the query flags into a
// filter request. An empty clause matches every record of kind.
func BuildRequest(kind, clause string, flags QueryFlags) (filter.Request, error) {
	if !queryir.ValidField(kind) {
		return filter.Request{}, fmt.Errorf("invalid entity kind %q", kind)
	}
	req := filter.New(kind)

	if strings.TrimSpace(clause) != "" {
		p, err := filter.ParseClause(clause)
		if err != nil {
			return filter.Request{}, err
		}
		req = req.SuchThat(p)
	}

	for _, key := range flags.Sort {
		key = strings.TrimSpace(key)
		if name, ok := strings.CutPrefix(key, "-"); ok {
			req = req.SortByDescending(name)
		} else {
			req = req.SortBy(key)
		}
	}
	if flags.Limit < 0 || flags.Offset < 0 || flags.BatchSize < 0 {
		return filter.Request{}, fmt.Errorf("limit, offset and batch size must not be negative")
	}

	req = req.Limit(flags.Limit).Offset(flags.Offset).BatchSize(flags.BatchSize)
	if err := queryir.Check(req.Query()); err != nil {
		return filter.Request{}, err
	}
	return req, nil
}

// prepare builds the request and checks it against the workspace schema.
// Failures are reported through f.
func (q *QueryFlags) prepare(f *OutputFormatter, ws *Workspace, kind, clause string) (filter.Request, error) {
	req, err := BuildRequest(kind, clause, *q)
	if err != nil {
		return filter.Request{}, f.Fail(ExitCommandError, ErrCodeInvalidQuery, "invalid query", err)
	}
	if ws.Schema != nil {
		if err := ws.Schema.CheckQuery(req.Query()); err != nil {
			return filter.Request{}, f.Fail(ExitCommandError, ErrCodeSchema, "query does not match schema", err)
		}
	}
	for _, w := range queryir.Validate(req.Query()).Warnings {
		f.VerboseLog("portability: %s", w)
	}
	return req, nil
}
