package upload

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"file-transfer-testserver/internal/logging"
	"file-transfer-testserver/internal/storage"
)

// maxParamBytes bounds a single non-file form value.
const maxParamBytes = 1 << 20

// Recorder receives upload outcomes. *server.Metrics satisfies it.
type Recorder interface {
	RecordUpload(bytes int64, duration time.Duration)
	RecordUploadError()
}

// ErrorWriter writes a failed parse to the client.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Parser is the upload-parsing middleware.
type Parser struct {
	Saver   *storage.Saver
	Field   string // defaults to DefaultField
	Metrics Recorder
	Logger  *logging.Logger
	OnError ErrorWriter
}

func (p *Parser) field() string {
	if p.Field == "" {
		return DefaultField
	}
	return p.Field
}

func (p *Parser) logger() *logging.Logger {
	if p.Logger == nil {
		return logging.Default()
	}
	return p.Logger
}

// StatusFor maps parser errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		ve *ValidationError
		pe *ParseError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &pe):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// isMultipart reports whether r carries a multipart/form-data body.
func isMultipart(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// Middleware parses multipart POST bodies and passes everything else through
// untouched. On success the Form is available via FormFromContext.
func (p *Parser) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMultipart(r) {
			next.ServeHTTP(w, r)
			return
		}

		form, err := p.Parse(r)
		if err != nil {
			if p.Metrics != nil {
				p.Metrics.RecordUploadError()
			}
			p.logger().WithContext(r.Context()).Warn("upload_parse_failed", logging.Fields{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			if p.OnError != nil {
				p.OnError(w, r, err)
			} else {
				http.Error(w, err.Error(), StatusFor(err))
			}
			return
		}

		if form.File != nil && p.Metrics != nil {
			p.Metrics.RecordUpload(form.File.Size, form.File.Duration)
		}
		next.ServeHTTP(w, r.WithContext(WithForm(r.Context(), form)))
	})
}

// Parse reads the whole multipart body of r. The first part named after the
// configured field that carries a filename is stored; later file parts are
// drained and ignored. If any part after the stored file fails, the stored
// object is deleted again so a rejected request leaves nothing behind.
func (p *Parser) Parse(r *http.Request) (_ *Form, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	form := &Form{Params: make(map[string][]string)}
	defer func() {
		if err != nil && form.File != nil {
			p.discard(r, form.File)
		}
	}()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}

		filename, isFile := rawFileName(part)
		switch {
		case !isFile:
			v, err := readParam(part)
			_ = part.Close()
			if err != nil {
				return nil, err
			}
			form.Params[part.FormName()] = append(form.Params[part.FormName()], v)

		case part.FormName() == p.field() && form.File == nil && filename != "":
			stored, err := p.store(r, part, filename)
			_ = part.Close()
			if err != nil {
				return nil, err
			}
			form.File = stored

		default:
			if _, err := io.Copy(io.Discard, part); err != nil {
				_ = part.Close()
				return nil, &ParseError{Err: err}
			}
			_ = part.Close()
		}
	}
	return form, nil
}

// discard removes a stored file whose request failed afterwards. It runs
// even when the request context is already cancelled.
func (p *Parser) discard(r *http.Request, f *StoredUpload) {
	ctx := context.WithoutCancel(r.Context())
	if err := p.Saver.Backend.Delete(ctx, f.SavedAs); err != nil {
		p.logger().WithContext(ctx).Error("upload_discard_failed", logging.Fields{"saved_as": f.SavedAs}, err)
		return
	}
	p.logger().WithContext(ctx).Info("upload_discarded", logging.Fields{"saved_as": f.SavedAs})
}

// rawFileName returns the filename parameter exactly as the client sent it.
// multipart.Part.FileName reduces it to its base name, which would hide what
// the client declared.
func rawFileName(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		name := part.FileName()
		return name, name != ""
	}
	name, ok := params["filename"]
	return name, ok
}

// sourceReader remembers the first read error of the request body so a
// truncated upload is reported as a parse failure, not a storage one.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func readParam(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxParamBytes+1))
	if err != nil {
		return "", &ParseError{Err: err}
	}
	if len(b) > maxParamBytes {
		return "", &ParseError{Err: fmt.Errorf("form value %q too large", part.FormName())}
	}
	return string(b), nil
}

func (p *Parser) store(r *http.Request, part *multipart.Part, original string) (*StoredUpload, error) {
	start := time.Now()
	sanitized := SanitizeFilename(original)
	ext := Extension(original)

	contentType := strings.TrimSpace(part.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension("." + strings.ToLower(Extension(sanitized))); byExt != "" {
			contentType = byExt
		}
	}

	hasher := blake3.New()
	src := &sourceReader{r: part}
	info, err := p.Saver.Save(r.Context(), sanitized, io.TeeReader(src, hasher), contentType)
	if err != nil {
		if src.err != nil {
			return nil, &ParseError{Err: src.err}
		}
		return nil, &StorageError{Name: sanitized, Err: err}
	}

	return &StoredUpload{
		Field:         part.FormName(),
		OriginalName:  original,
		SanitizedName: sanitized,
		SavedAs:       info.Name,
		StoragePath:   info.Location,
		Extension:     ext,
		ContentType:   contentType,
		Size:          info.Size,
		Blake3:        hex.EncodeToString(hasher.Sum(nil)),
		StoredAt:      time.Now().UTC(),
		Duration:      time.Since(start),
	}, nil
}
