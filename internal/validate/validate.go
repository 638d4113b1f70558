// Package validate checks serialized METS documents against an XSD using
// libxml2. Validation results are reported, never fatal on their own.
package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"
)

var (
	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
)

func ensureInit() error {
	initOnce.Do(func() {
		initErr = xsdvalidate.Init()
		initialized.Store(initErr == nil)
	})
	return initErr
}

// Shutdown releases libxml2 global state if it was ever set up. Call once at
// process exit.
func Shutdown() {
	if initialized.Swap(false) {
		xsdvalidate.Cleanup()
	}
}

// Kind separates documents that are not well-formed from documents that
// parse but do not conform.
type Kind string

const (
	KindSyntax Kind = "syntax"
	KindSchema Kind = "schema"
)

// Error describes a failed validation.
type Error struct {
	Kind    Kind
	Line    int
	Message string
	Details []string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at line %d: %s", e.Kind, e.Line, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Validator validates serialized document bytes.
type Validator interface {
	Validate(data []byte) error
}

// Locate resolves the schema path against the working directory. ok is false
// when no regular file exists there.
func Locate(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return abs, false
	}
	return abs, true
}

// XSD is a compiled schema. It is safe to call Validate from one goroutine at
// a time.
type XSD struct {
	path    string
	mu      sync.Mutex
	handler *xsdvalidate.XsdHandler
}

// NewXSD compiles the schema at path.
func NewXSD(path string) (*XSD, error) {
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("init libxml2: %w", err)
	}
	handler, err := xsdvalidate.NewXsdHandlerUrl(path, xsdvalidate.ParsErrDefault)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	return &XSD{path: path, handler: handler}, nil
}

// Path returns the schema location.
func (x *XSD) Path() string {
	return x.path
}

// Validate returns nil, an *Error, or an unexpected libxml2 failure.
func (x *XSD) Validate(data []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.handler == nil {
		return errors.New("validate: schema is closed")
	}

	err := x.handler.ValidateMem(data, xsdvalidate.ValidErrDefault)
	if err == nil {
		return nil
	}

	var verr xsdvalidate.ValidationError
	if errors.As(err, &verr) {
		out := &Error{Kind: KindSchema, Message: strings.TrimSpace(verr.Error())}
		for i, se := range verr.Errors {
			msg := strings.TrimSpace(se.Message)
			if i == 0 {
				out.Line = se.Line
				out.Message = msg
			}
			out.Details = append(out.Details, fmt.Sprintf("line %d: %s", se.Line, msg))
		}
		return out
	}

	var perr xsdvalidate.XmlParserError
	if errors.As(err, &perr) {
		return &Error{Kind: KindSyntax, Message: strings.TrimSpace(perr.Error())}
	}
	return err
}

// Close frees the compiled schema.
func (x *XSD) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.handler != nil {
		x.handler.Free()
		x.handler = nil
	}
}
