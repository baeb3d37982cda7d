// Package policy decides whether a resolved blob should be processed.
package policy

import (
	"fmt"
	"strings"

	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/domain"
)

// CSVExtension is the only accepted blob suffix, compared case-insensitively
const CSVExtension = ".csv"

// Filter accepts blobs from the configured input container that end in .csv
type Filter struct {
	inputContainer string
}

// NewFilter creates a filter for the given processor configuration
func NewFilter(cfg config.ProcessorConfig) *Filter {
	return &Filter{inputContainer: cfg.InputContainer}
}

// Evaluate returns a decision for every resolution, never an error
func (f *Filter) Evaluate(res domain.Resolution) domain.Decision {
	if !res.Resolved() {
		return domain.Decision{
			Reason:  domain.ReasonUnresolved,
			Message: "container/blob could not be determined",
		}
	}

	loc := res.Location
	if loc.Container != f.inputContainer {
		return domain.Decision{
			Reason:  domain.ReasonWrongContainer,
			Message: fmt.Sprintf("container %s is not the input container %s", loc.Container, f.inputContainer),
		}
	}

	if !IsCSV(loc.BlobPath) {
		return domain.Decision{
			Reason:  domain.ReasonWrongExtension,
			Message: fmt.Sprintf("blob %s is not a CSV", loc.BlobPath),
		}
	}

	return domain.Decision{
		Accepted: true,
		Reason:   domain.ReasonAccepted,
		Message:  "accepted",
	}
}

// IsCSV reports whether a blob path has the .csv suffix in any case
func IsCSV(blobPath string) bool {
	return strings.HasSuffix(strings.ToLower(blobPath), CSVExtension)
}
