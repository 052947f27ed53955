package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a typed client for the thereabout backend REST interface. The
// backend is authoritative for all persisted state; the client never caches.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a backend client. A trailing slash on baseURL is ignored.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Locations fetches all entries within the inclusive date range.
func (c *Client) Locations(ctx context.Context, from, to Date) ([]LocationEntry, error) {
	q := url.Values{"from": {from.String()}, "to": {to.String()}}
	var entries []LocationEntry
	if err := c.get(ctx, "/location", q, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SparseLocations fetches the downsampled entry set used for heatmap rendering.
func (c *Client) SparseLocations(ctx context.Context, from, to Date) ([]LocationEntry, error) {
	q := url.Values{"from": {from.String()}, "to": {to.String()}}
	var entries []LocationEntry
	if err := c.get(ctx, "/location/sparse", q, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddLocation creates a new entry and returns it with its assigned id.
// The timestamp is normalized to UTC for transmission.
func (c *Client) AddLocation(ctx context.Context, entry LocationEntry) (LocationEntry, error) {
	entry.ID = 0
	entry.Timestamp = entry.Timestamp.UTC()
	var created LocationEntry
	if err := c.send(ctx, http.MethodPost, "/location", entry, &created); err != nil {
		return LocationEntry{}, err
	}
	return created, nil
}

// UpdateLocation persists an in-place edit of one entry.
func (c *Client) UpdateLocation(ctx context.Context, entry LocationEntry) (LocationEntry, error) {
	if !entry.Persisted() {
		return LocationEntry{}, fmt.Errorf("cannot update entry without id")
	}
	entry.Timestamp = entry.Timestamp.UTC()
	var updated LocationEntry
	err := c.send(ctx, http.MethodPut, "/location/"+strconv.FormatInt(entry.ID, 10), entry, &updated)
	if err != nil {
		return LocationEntry{}, err
	}
	return updated, nil
}

// DeleteLocations deletes all given entries in one batch request.
func (c *Client) DeleteLocations(ctx context.Context, ids []int64) error {
	return c.send(ctx, http.MethodDelete, "/location", ids, nil)
}

// LocationLists fetches all curated lists with their member entries.
func (c *Client) LocationLists(ctx context.Context) ([]LocationList, error) {
	var lists []LocationList
	if err := c.get(ctx, "/location-list", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// LocationList fetches one list by id.
func (c *Client) LocationList(ctx context.Context, id int64) (LocationList, error) {
	var list LocationList
	if err := c.get(ctx, "/location-list/"+strconv.FormatInt(id, 10), nil, &list); err != nil {
		return LocationList{}, err
	}
	return list, nil
}

// CreateLocationList creates a list and returns it with its assigned id.
func (c *Client) CreateLocationList(ctx context.Context, list LocationList) (LocationList, error) {
	list.ID = 0
	var created LocationList
	if err := c.send(ctx, http.MethodPost, "/location-list", list, &created); err != nil {
		return LocationList{}, err
	}
	return created, nil
}

// UpdateLocationList replaces a list's name and membership.
func (c *Client) UpdateLocationList(ctx context.Context, list LocationList) (LocationList, error) {
	var updated LocationList
	err := c.send(ctx, http.MethodPut, "/location-list/"+strconv.FormatInt(list.ID, 10), list, &updated)
	if err != nil {
		return LocationList{}, err
	}
	return updated, nil
}

// DeleteLocationList deletes a list. Its location entries are left untouched.
func (c *Client) DeleteLocationList(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, "/location-list/"+strconv.FormatInt(id, 10), nil, nil)
}

// AddToLocationList appends one entry to a list. Adding an entry that is
// already a member fails.
func (c *Client) AddToLocationList(ctx context.Context, listID, entryID int64) error {
	path := "/location-list/" + strconv.FormatInt(listID, 10) + "/location"
	return c.send(ctx, http.MethodPost, path, listEntryRef{LocationHistoryEntryID: entryID}, nil)
}

// RemoveFromLocationList removes one entry from a list.
func (c *Client) RemoveFromLocationList(ctx context.Context, listID, entryID int64) error {
	path := "/location-list/" + strconv.FormatInt(listID, 10) + "/location"
	return c.send(ctx, http.MethodDelete, path, listEntryRef{LocationHistoryEntryID: entryID}, nil)
}

// Trips fetches all trips.
func (c *Client) Trips(ctx context.Context) ([]Trip, error) {
	var trips []Trip
	if err := c.get(ctx, "/trip", nil, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// AddTrip creates a trip.
func (c *Client) AddTrip(ctx context.Context, trip Trip) (Trip, error) {
	trip.ID = 0
	var created Trip
	if err := c.send(ctx, http.MethodPost, "/trip", trip, &created); err != nil {
		return Trip{}, err
	}
	return created, nil
}

// UpdateTrip replaces a trip.
func (c *Client) UpdateTrip(ctx context.Context, trip Trip) (Trip, error) {
	var updated Trip
	err := c.send(ctx, http.MethodPut, "/trip/"+strconv.FormatInt(trip.ID, 10), trip, &updated)
	if err != nil {
		return Trip{}, err
	}
	return updated, nil
}

// DeleteTrip deletes a trip. Its location entries are left untouched.
func (c *Client) DeleteTrip(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, "/trip/"+strconv.FormatInt(id, 10), nil, nil)
}

// Health fetches metric samples and workouts for the inclusive date range.
func (c *Client) Health(ctx context.Context, from, to Date) (HealthResponse, error) {
	q := url.Values{"from": {from.String()}, "to": {to.String()}}
	var resp HealthResponse
	if err := c.get(ctx, "/health", q, &resp); err != nil {
		return HealthResponse{}, err
	}
	return resp, nil
}

// Messages fetches all messages of one calendar date.
func (c *Client) Messages(ctx context.Context, date Date) ([]Message, error) {
	q := url.Values{"date": {date.String()}}
	var messages []Message
	if err := c.get(ctx, "/message", q, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MessageList fetches one page of the filtered message listing.
func (c *Client) MessageList(ctx context.Context, query MessageQuery) (MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(query.Page))
	if query.Size > 0 {
		q.Set("size", strconv.Itoa(query.Size))
	}
	if query.Sort != "" {
		q.Set("sort", query.Sort)
	}
	if query.Search != "" {
		q.Set("search", query.Search)
	}
	if !query.DateFrom.IsZero() {
		q.Set("dateFrom", query.DateFrom.String())
	}
	if !query.DateTo.IsZero() {
		q.Set("dateTo", query.DateTo.String())
	}
	if query.Source != "" {
		q.Set("source", query.Source)
	}
	if query.Sender != "" {
		q.Set("sender", query.Sender)
	}
	if query.Receiver != "" {
		q.Set("receiver", query.Receiver)
	}

	var page MessagePage
	if err := c.get(ctx, "/message/list", q, &page); err != nil {
		return MessagePage{}, err
	}
	return page, nil
}

// ImportFile uploads a file for asynchronous import. Progress is observed
// via ImportStatus; the upload only enqueues the job.
func (c *Client) ImportFile(ctx context.Context, filename string, file io.Reader, importType, receiver string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.WriteField("importType", importType); err != nil {
		return err
	}
	if receiver != "" {
		if err := writer.WriteField("receiver", receiver); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/config/import-file", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("import upload failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ImportStatus fetches the state of the in-flight import job.
func (c *Client) ImportStatus(ctx context.Context) (FileImportStatus, error) {
	var status FileImportStatus
	if err := c.get(ctx, "/config/import-status", nil, &status); err != nil {
		return FileImportStatus{}, err
	}
	return status, nil
}

// Statistics fetches the pre-computed country/day statistics.
func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	if err := c.get(ctx, "/statistics", nil, &stats); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
