// Package client streams files to an upload server as multipart requests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"file-transfer-testserver/internal/upload"
)

// Options configure a single upload.
type Options struct {
	// Server is either a base URL ("http://host:3000") or the full upload URL.
	Server      string
	Field       string            // defaults to upload.DefaultField
	Name        string            // filename declared to the server
	ContentType string            // defaults to the MIME type of Name's extension
	Params      map[string]string // extra text fields, sent before the file
	HTTPClient  *http.Client
}

// ResponseError is returned for non-2xx replies.
type ResponseError struct {
	StatusCode int
	Body       upload.ErrorBody
}

func (e *ResponseError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body.Error)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// UploadURL resolves the endpoint for server.
func UploadURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server url must include scheme and host: %q", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/upload"
	}
	return u.String(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Upload streams src through an io.Pipe so the body is never buffered. Bytes
// read from src are mirrored to progress when it is non-nil.
func Upload(ctx context.Context, opts Options, src io.Reader, progress io.Writer) (upload.Ack, error) {
	endpoint, err := UploadURL(opts.Server)
	if err != nil {
		return upload.Ack{}, err
	}
	field := opts.Field
	if field == "" {
		field = upload.DefaultField
	}
	if opts.Name == "" {
		return upload.Ack{}, fmt.Errorf("filename is required")
	}
	ct := opts.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(opts.Name))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	if progress != nil {
		src = io.TeeReader(src, progress)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeBody(mw, field, opts.Name, ct, opts.Params, src))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return upload.Ack{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Minute}
	}
	resp, err := hc.Do(req)
	if err != nil {
		_ = pr.Close()
		return upload.Ack{}, fmt.Errorf("post upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := &ResponseError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&re.Body)
		return upload.Ack{}, re
	}

	var ack upload.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return upload.Ack{}, fmt.Errorf("decode acknowledgment: %w", err)
	}
	return ack, nil
}

func writeBody(mw *multipart.Writer, field, name, contentType string, params map[string]string, src io.Reader) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, params[k]); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return mw.Close()
}
