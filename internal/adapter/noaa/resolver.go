package noaa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"
)

// FileResolver locates the archive data file for a given year. Implementations
// return an empty URL (and no error) when the year has no published file.
// Discovery is isolated behind this interface because the default
// implementation scrapes an HTML directory listing, which is fragile to
// upstream markup changes and needs to be swappable on its own.
type FileResolver interface {
	Resolve(ctx context.Context, year int) (string, error)
}

// DirectoryResolver discovers files by regex-matching the NOAA bulk download
// directory listing. Filenames follow
// StormEvents_details-ftp_v1.0_d<year>_c<revision>.csv.gz; several revisions
// of the same year may be listed, and the revision date in the name makes the
// lexically last match the authoritative one.
type DirectoryResolver struct {
	httpClient *http.Client
	baseURL    string
}

// NewDirectoryResolver creates a resolver against the NOAA storm events
// bulk-download directory.
func NewDirectoryResolver(baseURL string, timeout time.Duration) *DirectoryResolver {
	if baseURL == "" {
		baseURL = "https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles"
	}
	return &DirectoryResolver{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (r *DirectoryResolver) Resolve(ctx context.Context, year int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch directory listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("directory listing: status %d", resp.StatusCode)
	}

	listing, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read directory listing: %w", err)
	}

	pattern, err := regexp.Compile(fmt.Sprintf(`StormEvents_details-ftp_v1\.0_d%d_c\d+\.csv\.gz`, year))
	if err != nil {
		return "", fmt.Errorf("compile filename pattern: %w", err)
	}

	matches := pattern.FindAllString(string(listing), -1)
	if len(matches) == 0 {
		return "", nil
	}

	sort.Strings(matches)
	return r.baseURL + "/" + matches[len(matches)-1], nil
}
