package request

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/Brownie44l1/myownwebserver/internal/media"
	"github.com/Brownie44l1/myownwebserver/internal/resource"
	"github.com/Brownie44l1/myownwebserver/internal/response"
)

// Error is a validation failure and the status it is answered with
type Error struct {
	Status  response.StatusCode
	Err     error
	Request *Request // nil if the request was never parsed
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Status, response.StatusText(e.Status), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf maps an error returned by Validate to a status code
func StatusOf(err error) response.StatusCode {
	if err == nil {
		return response.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return response.StatusServerError
}

// Resolved is a request that passed validation
type Resolved struct {
	Request     *Request
	Path        string // absolute path on disk
	Name        string // path relative to the web root filesystem
	ContentType string
	Status      response.StatusCode
}

// Validator checks raw requests against the web root
type Validator struct {
	Root    string
	Version string
	// FlattenPaths serves every target from the web root directory itself,
	// using only the last path segment. Otherwise subdirectories are served
	// and ".." segments are rejected.
	FlattenPaths bool
	Loader       *resource.Loader
}

// Validate runs the acceptance checks in order; the first failing check
// decides the status:
//
//	not started                    500
//	method is not GET              406
//	fewer than three tokens        400
//	protocol mismatch              505
//	target not starting with "/"   400
//	bad escape or ".." segment     400
//	extension not whitelisted      415
//	no such regular file           404
func (v *Validator) Validate(raw []byte, started bool) (*Resolved, error) {
	if !started {
		return nil, &Error{Status: response.StatusServerError, Err: ErrNotStarted}
	}

	req, perr := Parse(raw)

	if !isValidMethod(req.Method) {
		return nil, &Error{
			Status:  response.StatusMethodNotAccepted,
			Err:     fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method),
			Request: req,
		}
	}

	if perr != nil {
		return nil, &Error{Status: response.StatusBadRequest, Err: perr, Request: req}
	}

	if req.Version != v.Version {
		return nil, &Error{
			Status:  response.StatusHTTPVersionNotSupported,
			Err:     fmt.Errorf("%w: %q", ErrUnsupportedVersion, req.Version),
			Request: req,
		}
	}

	if !isValidPath(req.Target) {
		return nil, &Error{
			Status:  response.StatusBadRequest,
			Err:     fmt.Errorf("%w: %q", ErrInvalidPath, req.Target),
			Request: req,
		}
	}

	res, err := v.Resolve(req.Target)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Request = req
		}
		return nil, err
	}
	res.Request = req
	return res, nil
}

// Resolve maps a target onto a file under the web root and checks its
// extension and existence. A leading "/" is optional.
func (v *Validator) Resolve(target string) (*Resolved, error) {
	p := target
	if i := strings.IndexAny(p, "?#"); i != -1 {
		p = p[:i]
	}
	p, err := url.PathUnescape(p)
	if err != nil {
		return nil, &Error{Status: response.StatusBadRequest, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
	}
	p = strings.ReplaceAll(p, `\`, "/")

	var name string
	if v.FlattenPaths {
		name = path.Base(p)
		if name == "/" || name == "." {
			name = ""
		}
	} else {
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return nil, &Error{
					Status: response.StatusBadRequest,
					Err:    fmt.Errorf("%w: traversal in %q", ErrInvalidPath, target),
				}
			}
		}
		name = strings.TrimPrefix(path.Clean("/"+p), "/")
	}

	contentType, ok := media.ForExtension(path.Ext(name))
	if !ok {
		return nil, &Error{
			Status: response.StatusUnsupportedMediaType,
			Err:    fmt.Errorf("%w: %q", ErrUnsupportedMediaType, path.Ext(name)),
		}
	}

	abs := filepath.Join(v.Root, filepath.FromSlash(name))
	if !v.FlattenPaths {
		abs, err = securejoin.SecureJoin(v.Root, filepath.FromSlash(name))
		if err != nil {
			return nil, &Error{Status: response.StatusNotFound, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
		}
		rel, err := filepath.Rel(v.Root, abs)
		if err != nil {
			return nil, &Error{Status: response.StatusNotFound, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
		}
		name = filepath.ToSlash(rel)
	}

	if !v.Loader.Exists(name) {
		return nil, &Error{
			Status: response.StatusNotFound,
			Err:    fmt.Errorf("%w: %s", ErrNotFound, abs),
		}
	}

	return &Resolved{
		Path:        abs,
		Name:        name,
		ContentType: contentType,
		Status:      response.StatusOK,
	}, nil
}
