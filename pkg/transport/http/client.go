// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package http implements the HTTP client side of the push protocol.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/lirios/ostree-upload/pkg/transport"
	"github.com/lirios/ostree-upload/pkg/version"
)

const (
	apiPrefix = "/api/v1"
	jsonMIME  = "application/json"
)

var dialer = net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

type client struct {
	*http.Client
	baseURL   *url.URL
	token     string
	userAgent string
}

// NewTransport returns a Transport speaking to the receiver at
// endpoint. The bearer token is sent on every request; its semantics
// are the receiver's business.
func NewTransport(endpoint, token string) (transport.Transport, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", base.Scheme)
	}
	return &client{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		baseURL:   base,
		token:     token,
		userAgent: "ostree-upload/" + version.GetVersion(),
	}, nil
}

func (c *client) apiURL(op string) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, apiPrefix, op)
	return u.String()
}

func (c *client) newRequest(ctx context.Context, method, op string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(op), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *client) doJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("do request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response error: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if m, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(m, jsonMIME) {
		e := &transport.ErrorResponse{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(e); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		e.Message = strings.TrimRightFunc(e.Message, unicode.IsSpace)
		return e
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &transport.ErrorResponse{
		Status:  resp.StatusCode,
		Type:    transport.ErrorTypeGeneric,
		Message: strings.TrimRightFunc(resp.Status+"\n"+string(b), unicode.IsSpace),
	}
}

func (c *client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, "GET", "ping", nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

func (c *client) Info(ctx context.Context) (*transport.Info, error) {
	req, err := c.newRequest(ctx, "GET", "info", nil)
	if err != nil {
		return nil, err
	}
	var info transport.Info
	if err := c.doJSON(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *client) Update(ctx context.Context, refs transport.UpdateSet) (*transport.Status, error) {
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(&transport.UpdateRequest{Refs: refs}); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, "POST", "update", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", jsonMIME)
	var status transport.Status
	if err := c.doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *client) MissingObjects(ctx context.Context, wanted []transport.NeededObject) ([]transport.NeededObject, error) {
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(&transport.MissingObjectsArgs{Wanted: wanted}); err != nil {
		return nil, err
	}
	// The body rides on a GET, a quirk of the original protocol.
	req, err := c.newRequest(ctx, "GET", "missing_objects", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", jsonMIME)
	var response transport.MissingObjectsResponse
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Missing, nil
}

func (c *client) Upload(ctx context.Context, object *transport.NeededObject) (*transport.Status, error) {
	f, err := os.Open(object.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", object.ObjectName, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, object, f))
	}()

	req, err := c.newRequest(ctx, "POST", "upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var status transport.Status
	if err := c.doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// writeUploadForm emits the form fields in the order the receiver
// expects: the scalar fields first, the file part last.
func writeUploadForm(mw *multipart.Writer, object *transport.NeededObject, f *os.File) error {
	fields := []struct{ name, value string }{
		{"rev", object.Rev},
		{"object_name", object.ObjectName},
		{"checksum", object.Checksum},
	}
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", object.ObjectName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

func (c *client) Done(ctx context.Context) (*transport.Status, error) {
	req, err := c.newRequest(ctx, "POST", "done", nil)
	if err != nil {
		return nil, err
	}
	var status transport.Status
	if err := c.doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
