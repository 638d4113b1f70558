package validate

import (
	"errors"
	"log/slog"
)

// Stage names a validation point in the pipeline.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

type Status string

const (
	StatusSkipped     Status = "skipped"
	StatusValid       Status = "valid"
	StatusSyntaxError Status = "syntax_error"
	StatusSchemaError Status = "schema_error"
	StatusError       Status = "error"
)

// Report is the outcome of one validation stage.
type Report struct {
	Stage   Stage    `json:"stage"`
	Status  Status   `json:"status"`
	Line    int      `json:"line,omitempty"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Failed reports whether the document was checked and rejected.
func (r Report) Failed() bool {
	return r.Status != StatusSkipped && r.Status != StatusValid
}

// Check runs v over data and logs the result for stage. A nil v yields a
// skipped report.
func Check(v Validator, stage Stage, data []byte, logger *slog.Logger) Report {
	rep := Report{Stage: stage}
	log := logger.With("stage", string(stage))

	if v == nil {
		rep.Status = StatusSkipped
		log.Debug("schema validation skipped")
		return rep
	}

	err := v.Validate(data)
	if err == nil {
		rep.Status = StatusValid
		log.Info("schema validation passed")
		return rep
	}

	var verr *Error
	if !errors.As(err, &verr) {
		rep.Status = StatusError
		rep.Message = err.Error()
		log.Error("schema validation could not run", "error", err)
		return rep
	}

	rep.Line = verr.Line
	rep.Message = verr.Message
	rep.Details = verr.Details
	switch verr.Kind {
	case KindSyntax:
		rep.Status = StatusSyntaxError
		log.Warn("document is not well-formed", "line", verr.Line, "error", verr.Message)
	default:
		rep.Status = StatusSchemaError
		log.Warn("document does not conform to schema", "line", verr.Line, "error", verr.Message, "problems", len(verr.Details))
		for _, d := range verr.Details {
			log.Debug("schema problem", "detail", d)
		}
	}
	return rep
}
