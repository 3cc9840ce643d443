// Package hub lists and inspects Hugging Face datasets for the dashboard.
//
// The hub API returns loosely shaped JSON, so numeric and size fields are
// read from several candidate keys before the processed shape is handed
// to the frontend.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

const (
	// DefaultBaseURL is the public hub API.
	DefaultBaseURL = "https://huggingface.co/api"

	defaultTimeout = 30 * time.Second
)

// HTTPError is a non-2xx hub API response.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hub api error: op=%s status=%s", e.Op, e.Status)
}

// Client talks to the hub dataset endpoints.
type Client struct {
	log     logging.Logger
	baseURL *url.URL
	http    *http.Client
}

// NewClient builds a client for the given API base URL. Empty baseURL
// selects the public hub, timeout <= 0 the default.
func NewClient(log logging.Logger, baseURL string, timeout time.Duration) (*Client, error) {
	if log == nil {
		log = logging.New(nil)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("hub: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("hub: base URL %q must include a scheme and host", baseURL)
	}
	// A trailing slash makes ResolveReference treat the path as a
	// directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	return &Client{
		log:     log,
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// ListByAuthor returns the author's datasets sorted by downloads. An
// empty token sends an unauthenticated request.
func (c *Client) ListByAuthor(ctx context.Context, author, token string) ([]Dataset, error) {
	q := url.Values{}
	q.Set("author", author)
	q.Set("sort", "downloads")
	q.Set("direction", "-1")
	raw, err := c.get(ctx, "listDatasets", "datasets", q, token)
	if err != nil {
		return nil, err
	}
	return c.processList(raw, author), nil
}

// Search returns datasets matching the query, sorted by downloads.
// author, when set, narrows the search and marks owned results.
func (c *Client) Search(ctx context.Context, query, author, token string) ([]Dataset, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("sort", "downloads")
	q.Set("direction", "-1")
	if author != "" {
		q.Set("author", author)
	}
	raw, err := c.get(ctx, "searchDatasets", "datasets", q, token)
	if err != nil {
		return nil, err
	}
	return c.processList(raw, author), nil
}

// Details returns the full record for one dataset ID such as
// "author/name".
func (c *Client) Details(ctx context.Context, id, token string) (*Details, error) {
	raw, err := c.get(ctx, "datasetDetails", "datasets/"+id, nil, token)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("hub: parse dataset details: %w", err)
	}
	d := processDetails(record)
	return &d, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, token string) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hub: %s: read response: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &HTTPError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}

func (c *Client) processList(raw []byte, author string) []Dataset {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		c.log.Warn(context.Background(), "hub returned an unexpected dataset list shape", "error", err)
		return []Dataset{}
	}
	out := make([]Dataset, 0, len(records))
	for _, record := range records {
		out = append(out, processDataset(record, author))
	}
	return out
}

// Dataset is the processed summary shown in dataset listings. Size keeps
// whatever loose value the hub reported; SizeFormatted is nil when
// nothing usable was found.
type Dataset struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	FullName              string         `json:"full_name"`
	Author                string         `json:"author"`
	Description           string         `json:"description"`
	Downloads             int64          `json:"downloads"`
	Likes                 int64          `json:"likes"`
	Tags                  []string       `json:"tags"`
	LastModified          string         `json:"last_modified"`
	CreatedAt             string         `json:"created_at"`
	Size                  any            `json:"size"`
	SizeCategory          *string        `json:"size_category"`
	CardData              map[string]any `json:"card_data"`
	IsOwner               bool           `json:"is_owner"`
	LastModifiedFormatted string         `json:"last_modified_formatted,omitempty"`
	CreatedAtFormatted    string         `json:"created_at_formatted,omitempty"`
	SizeFormatted         *string        `json:"size_formatted"`
}

// Details extends the summary with the fields only the per-dataset
// endpoint returns.
type Details struct {
	Dataset
	Siblings      []any  `json:"siblings"`
	Configs       []any  `json:"configs"`
	DefaultConfig string `json:"default_config"`
	Citation      string `json:"citation"`
	Homepage      string `json:"homepage"`
	License       string `json:"license"`
	PaperID       string `json:"paper_id"`
	SHA           string `json:"sha"`
	Private       bool   `json:"private"`
}

func processDataset(record map[string]any, author string) Dataset {
	id := getString(record, "id")
	name := id
	if i := strings.LastIndex(id, "/"); i >= 0 {
		name = id[i+1:]
	}

	d := Dataset{
		ID:           id,
		Name:         name,
		FullName:     id,
		Author:       getString(record, "author"),
		Description:  getString(record, "description"),
		Downloads:    getInt64(record, "downloads"),
		Likes:        getInt64(record, "likes"),
		Tags:         getStrings(record, "tags"),
		LastModified: getString(record, "lastModified"),
		CreatedAt:    getString(record, "createdAt"),
		Size:         extractSize(record),
		SizeCategory: extractSizeCategory(record),
		CardData:     getMap(record, "cardData"),
	}
	d.IsOwner = author != "" && author == d.Author
	d.LastModifiedFormatted = formatHubTime(d.LastModified)
	d.CreatedAtFormatted = formatHubTime(d.CreatedAt)
	d.SizeFormatted = formatSizeField(d.Size, d.SizeCategory)
	return d
}

func processDetails(record map[string]any) Details {
	return Details{
		Dataset:       processDataset(record, ""),
		Siblings:      getSlice(record, "siblings"),
		Configs:       getSlice(record, "configs"),
		DefaultConfig: getString(record, "defaultConfig"),
		Citation:      getString(record, "citation"),
		Homepage:      getString(record, "homepage"),
		License:       getString(record, "license"),
		PaperID:       getString(record, "paperId"),
		SHA:           getString(record, "sha"),
		Private:       getBool(record, "private"),
	}
}

// extractSize tries the size field names the hub has used over time, then
// the dataset card. Empty and zero values are treated as absent.
func extractSize(record map[string]any) any {
	for _, key := range []string{"size", "sizeInBytes", "size_bytes"} {
		if v, ok := record[key]; ok && truthy(v) {
			return v
		}
	}
	card := getMap(record, "cardData")
	for _, key := range []string{"size", "sizeInBytes"} {
		if v, ok := card[key]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

func extractSizeCategory(record map[string]any) *string {
	for _, tag := range getStrings(record, "tags") {
		if strings.HasPrefix(tag, "size_categories:") {
			category := strings.TrimPrefix(tag, "size_categories:")
			return &category
		}
	}
	return nil
}

func formatSizeField(size any, category *string) *string {
	if truthy(size) {
		if n, ok := sizeBytes(size); ok && n >= 0 {
			formatted := formatSize(n)
			return &formatted
		}
		return nil
	}
	return category
}

func sizeBytes(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// formatSize renders a byte count the way the dashboard expects: at most
// two decimals, at least one.
func formatSize(n int64) string {
	if n == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	scaled := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	s := strconv.FormatFloat(scaled, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + " " + units[i]
}

func formatHubTime(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("2006-01-02 15:04")
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getInt64(m map[string]any, key string) int64 {
	if f, ok := m[key].(float64); ok {
		return int64(f)
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

func getStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getSlice(m map[string]any, key string) []any {
	if s, ok := m[key].([]any); ok {
		return s
	}
	return []any{}
}

func getMap(m map[string]any, key string) map[string]any {
	if mm, ok := m[key].(map[string]any); ok {
		return mm
	}
	return map[string]any{}
}
