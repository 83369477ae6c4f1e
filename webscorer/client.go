// Package webscorer is a small read-only client for the webscorer.com
// registration JSON feeds.
package webscorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.webscorer.com"

	// The feed rejects non-browser agents, so the client has to present
	// itself as one.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/115.0.0.0 Safari/537.36"
)

// Webscorer formats dates like "Mar 1, 2026" and start times like
// "Sunday, March 1, 2026 8:00 AM (GMT+02:00)".
const (
	dateLayout      = "Jan 2, 2006"
	startTimeLayout = "Monday, January 2, 2006 3:04 PM"
)

// FlexInt tolerates the feed's habit of quoting numbers on some endpoints.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("webscorer: parse int %q: %w", s, err)
	}
	*f = FlexInt(n)
	return nil
}

// FlexString accepts both quoted and bare scalar values. Bib numbers in
// particular arrive either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// StartListSummary is one race in the account's start list index.
type StartListSummary struct {
	RaceID FlexInt `json:"RaceId"`
	Name   string  `json:"Name"`
	City   string  `json:"City"`
	Date   string  `json:"Date"`
	Type   string  `json:"Type"`
}

type startListsResponse struct {
	StartLists []StartListSummary `json:"StartLists"`
}

// RaceInfo is the header block of a register list.
type RaceInfo struct {
	RaceID    FlexInt `json:"RaceId"`
	Name      string  `json:"Name"`
	City      string  `json:"City"`
	Date      string  `json:"Date"`
	StartTime string  `json:"StartTime"`
	Type      string  `json:"Type"`
}

// Entry is one registered participant. Pointer fields distinguish absent
// keys from empty values; the importer cares about that difference.
type Entry struct {
	FirstName   *string     `json:"FirstName"`
	LastName    *string     `json:"LastName"`
	Email       *string     `json:"Email"`
	Gender      *string     `json:"Gender"`
	YearOfBirth *FlexInt    `json:"YearOfBirth"`
	Age         *FlexInt    `json:"Age"`
	TeamName    *string     `json:"TeamName"`
	Bib         *FlexString `json:"Bib"`
	ChipID      *FlexString `json:"ChipId"`
	Category    *string     `json:"Category"`
}

// RegisterList is the full registration feed for one race.
type RegisterList struct {
	RaceInfo  RaceInfo `json:"RaceInfo"`
	StartList []Entry  `json:"StartList"`
}

type Client struct {
	baseURL string
	apiID   string
	apiPriv string
	hc      *http.Client
}

// NewClient builds a feed client for one webscorer account. An empty
// baseURL means the real service; tests point it at a local server.
func NewClient(baseURL, apiID, apiPriv string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiID:   apiID,
		apiPriv: apiPriv,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// StartLists fetches the index of races with registration enabled.
func (c *Client) StartLists(ctx context.Context) ([]StartListSummary, error) {
	u := fmt.Sprintf("%s/json/mystartlists?apiid=%s&filt=R", c.baseURL, url.QueryEscape(c.apiID))
	var out startListsResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.StartLists, nil
}

// StartListsOn filters the index down to races held on the given day.
// Entries without a date are skipped; entries with a malformed one are an
// error, matching how strict the feed normally is.
func (c *Client) StartListsOn(ctx context.Context, day time.Time) ([]StartListSummary, error) {
	all, err := c.StartLists(ctx)
	if err != nil {
		return nil, err
	}
	target := day.Format("2006-01-02")
	var out []StartListSummary
	for _, s := range all {
		if s.Date == "" {
			continue
		}
		d, err := ParseDate(s.Date)
		if err != nil {
			return nil, err
		}
		if d == target {
			out = append(out, s)
		}
	}
	return out, nil
}

// RegisterList fetches the full start list for one race.
func (c *Client) RegisterList(ctx context.Context, raceID int) (*RegisterList, error) {
	u := fmt.Sprintf("%s/json/registerlist?raceid=%d&apiid=%s&apipriv=%s",
		c.baseURL, raceID, url.QueryEscape(c.apiID), url.QueryEscape(c.apiPriv))
	var out RegisterList
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webscorer: GET %s: %s", req.URL.Path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("webscorer: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// ParseDate converts a feed date to the storage form YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("webscorer: parse date %q: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}

// ParseStartTime drops the trailing "(GMT...)" label before parsing; the
// feed writes the offset in a form no time layout matches.
func ParseStartTime(s string) (time.Time, error) {
	base, _, _ := strings.Cut(s, " (")
	t, err := time.Parse(startTimeLayout, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("webscorer: parse start time %q: %w", s, err)
	}
	return t, nil
}
