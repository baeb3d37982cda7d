package domain

// ResolutionSource tags how a Resolution was obtained
type ResolutionSource int

const (
	// SourceUnresolved means neither the subject nor the url identified a blob
	SourceUnresolved ResolutionSource = iota
	// SourceSubject means the location came from the event subject
	SourceSubject
	// SourceURL means the location came from the blob url path
	SourceURL
	// SourceListing means the location came from listing the input container
	SourceListing
)

// String returns the log representation of the source
func (s ResolutionSource) String() string {
	switch s {
	case SourceSubject:
		return "subject"
	case SourceURL:
		return "url"
	case SourceListing:
		return "listing"
	default:
		return "unresolved"
	}
}

// Location identifies a blob inside a storage account
type Location struct {
	Container string
	BlobPath  string
}

// Resolution is the outcome of resolving a notification to a Location.
// Location is the zero value when Source is SourceUnresolved.
type Resolution struct {
	Location Location
	Source   ResolutionSource
}

// Unresolved returns the unresolved Resolution
func Unresolved() Resolution {
	return Resolution{Source: SourceUnresolved}
}

// ResolvedFrom returns a resolved Resolution tagged with its source
func ResolvedFrom(source ResolutionSource, container, blobPath string) Resolution {
	return Resolution{
		Location: Location{Container: container, BlobPath: blobPath},
		Source:   source,
	}
}

// Resolved reports whether a location was found
func (r Resolution) Resolved() bool {
	return r.Source != SourceUnresolved
}
