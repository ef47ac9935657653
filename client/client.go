// Package client talks to a store exposed by package server
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/carlmjohnson/requests"
	"github.com/kjk/regionstore/server"
	"github.com/kjk/regionstore/store"
)

type Client struct {
	// e.g. http://localhost:9340
	BaseURL string
	// if nil, http.DefaultClient is used
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) req(path string) *requests.Builder {
	rb := requests.URL(c.BaseURL).Path(path)
	if c.HTTPClient != nil {
		rb = rb.Client(c.HTTPClient)
	}
	return rb
}

// mapErr turns http status errors back into store errors so that
// callers can use errors.Is the same way as with a local store
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case requests.HasStatusErr(err, http.StatusNotFound):
		return fmt.Errorf("%w: %w", store.ErrFileNotFound, err)
	case requests.HasStatusErr(err, http.StatusBadRequest):
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	case requests.HasStatusErr(err, http.StatusInsufficientStorage):
		return fmt.Errorf("%w: %w", store.ErrInsufficientSpace, err)
	}
	return err
}

func decodeJSON(v any) requests.ResponseHandler {
	return func(res *http.Response) error {
		var r io.Reader = res.Body
		if res.Header.Get("Content-Encoding") == "br" {
			r = brotli.NewReader(res.Body)
		}
		return json.NewDecoder(r).Decode(v)
	}
}

// List returns all records and space usage
func (c *Client) List(ctx context.Context) (*server.Listing, error) {
	var res server.Listing
	err := c.req("/api/records").
		Header("Accept-Encoding", "br").
		Handle(decodeJSON(&res)).
		Fetch(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return &res, nil
}

// Read returns content of the first record called name
func (c *Client) Read(ctx context.Context, name string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.req("/api/record").
		Param("name", name).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return buf.Bytes(), nil
}

func (c *Client) put(ctx context.Context, name string, d []byte, replace bool) error {
	rb := c.req("/api/record").
		Put().
		Param("name", name).
		BodyBytes(d).
		ContentType("application/octet-stream")
	if replace {
		rb = rb.Param("replace", "1")
	}
	return mapErr(rb.Fetch(ctx))
}

// Write appends a record
func (c *Client) Write(ctx context.Context, name string, d []byte) error {
	return c.put(ctx, name, d, false)
}

// Replace erases the first record called name, if any, and appends d
func (c *Client) Replace(ctx context.Context, name string, d []byte) error {
	return c.put(ctx, name, d, true)
}

func (c *Client) Erase(ctx context.Context, name string) error {
	err := c.req("/api/record").
		Delete().
		Param("name", name).
		Fetch(ctx)
	return mapErr(err)
}

// Exists returns false on any error, including network errors
func (c *Client) Exists(ctx context.Context, name string) bool {
	err := c.req("/api/record").
		Head().
		Param("name", name).
		Fetch(ctx)
	return err == nil
}
