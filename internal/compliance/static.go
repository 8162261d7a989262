package compliance

import (
	"context"
	"strings"
)

// Static answers every check locally. It flags documents that mention any
// of Flagged (case-insensitive) and passes everything else. Used when no
// compliance endpoint is configured.
type Static struct {
	Flagged []string
}

func (s Static) Check(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := strings.ToLower(in.DocumentText)
	var hits []string
	for _, term := range s.Flagged {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			hits = append(hits, term)
		}
	}
	if len(hits) > 0 {
		return Result{
			ComplianceSummary: "document mentions flagged terms: " + strings.Join(hits, ", "),
			IsCompliant:       false,
		}, nil
	}
	return Result{ComplianceSummary: "no issues found by local screening", IsCompliant: true}, nil
}
