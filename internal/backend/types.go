package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Provider identifies the source cloud of the code being migrated.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

// Providers lists every supported source provider in display order.
var Providers = []Provider{ProviderAWS, ProviderAzure}

// ParseProvider accepts a provider name in any case.
func ParseProvider(value string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(value))) {
	case ProviderAWS:
		return ProviderAWS, nil
	case ProviderAzure:
		return ProviderAzure, nil
	}
	return "", fmt.Errorf("unknown provider %q (expected aws or azure)", value)
}

// JobState is the backend status of a migration job.
type JobState string

const (
	JobPending    JobState = "pending"
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether polling should stop on this state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ID is an opaque backend identifier. The backend may encode it as a JSON
// string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// RepositoryRef points the analysis service at a repository.
type RepositoryRef struct {
	URL    string `json:"repository_url" yaml:"repository_url"`
	Branch string `json:"branch" yaml:"branch"`
	Token  string `json:"token,omitempty" yaml:"-"`
}

// DetectedService is one cloud service found by repository analysis.
type DetectedService struct {
	ServiceName string   `json:"service_name" yaml:"service_name"`
	Files       []string `json:"files,omitempty" yaml:"files,omitempty"`
	Confidence  float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// AnalysisResult is the response of the repository analysis service.
type AnalysisResult struct {
	RepositoryID ID `json:"repository_id" yaml:"repository_id"`
	MAR          struct {
		ServicesDetected []DetectedService `json:"services_detected" yaml:"services_detected"`
	} `json:"mar" yaml:"mar"`
}

// DetectedServiceNames returns the detected service names in response order,
// skipping blanks and duplicates.
func (r AnalysisResult) DetectedServiceNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range r.MAR.ServicesDetected {
		name := strings.TrimSpace(s.ServiceName)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// CodeMigrationRequest is the body of POST /api/migrate.
type CodeMigrationRequest struct {
	Code          string   `json:"code"`
	Language      string   `json:"language"`
	Services      []string `json:"services"`
	CloudProvider Provider `json:"cloud_provider"`
}

// RepositoryOptions controls what the backend does with a migrated repository.
type RepositoryOptions struct {
	CreatePR   bool   `json:"create_pr" yaml:"create_pr" mapstructure:"create_pr"`
	BranchName string `json:"branch_name" yaml:"branch_name" mapstructure:"branch_name"`
	RunTests   bool   `json:"run_tests" yaml:"run_tests" mapstructure:"run_tests"`
}

// RepositoryMigrationRequest is the body of POST /api/repository/{id}/migrate.
type RepositoryMigrationRequest struct {
	Services []string `json:"services"`
	RepositoryOptions
}

// Submission is the outcome of a migration submission. Either MigrationID is
// set and the job must be polled, or Result holds a synchronous final result.
type Submission struct {
	MigrationID string
	Result      *MigrationResult
}

// Async reports whether the submission started a backend job.
func (s Submission) Async() bool {
	return s.MigrationID != ""
}

// StageProgress is the progress of one backend stage.
type StageProgress struct {
	Percent float64 `json:"percent" yaml:"percent"`
	Message string  `json:"message" yaml:"message"`
}

// Progress groups the stages the backend reports while a job runs.
type Progress struct {
	Refactoring StageProgress `json:"refactoring" yaml:"refactoring"`
	Validation  StageProgress `json:"validation" yaml:"validation"`
}

// JobStatus is the response of GET /api/migration/{id}. Status, progress and
// error are decoded strictly. A result field with an unexpected shape is kept
// raw in Extra so the reported status is never lost to it.
type JobStatus struct {
	Status          JobState                   `json:"status"`
	Progress        *Progress                  `json:"progress,omitempty"`
	Result          json.RawMessage            `json:"result,omitempty"`
	RefactoredCode  string                     `json:"refactored_code,omitempty"`
	VariableMapping map[string]any             `json:"variable_mapping,omitempty"`
	FilesChanged    []FileRef                  `json:"files_changed,omitempty"`
	FilesFailed     []FileRef                  `json:"files_failed,omitempty"`
	PRURL           string                     `json:"pr_url,omitempty"`
	Error           string                     `json:"error,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var head struct {
		Status   JobState        `json:"status"`
		Progress *Progress       `json:"progress"`
		Error    string          `json:"error"`
		Result   json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var top MigrationResult
	top.absorb(fields)
	*s = JobStatus{
		Status:          head.Status,
		Progress:        head.Progress,
		Result:          head.Result,
		RefactoredCode:  top.RefactoredCode,
		VariableMapping: top.VariableMapping,
		FilesChanged:    top.FilesChanged,
		FilesFailed:     top.FilesFailed,
		PRURL:           top.PRURL,
		Error:           head.Error,
		Extra:           top.Extra,
	}
	return nil
}

// FileRef names a file touched by a repository migration. The backend sends
// either a bare path or an object carrying a path and extra detail.
type FileRef struct {
	Path   string `json:"path" yaml:"path"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func (f *FileRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.Path)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, key := range []string{"path", "file", "file_path", "filename"} {
		if v, ok := obj[key].(string); ok {
			f.Path = v
			break
		}
	}
	for _, key := range []string{"error", "reason", "message", "detail"} {
		if v, ok := obj[key].(string); ok {
			f.Detail = v
			break
		}
	}
	return nil
}

// MigrationResult is the merged final result of a migration job.
type MigrationResult struct {
	RefactoredCode  string                     `json:"refactored_code,omitempty" yaml:"refactored_code,omitempty"`
	VariableMapping map[string]any             `json:"variable_mapping,omitempty" yaml:"variable_mapping,omitempty"`
	FilesChanged    []FileRef                  `json:"files_changed,omitempty" yaml:"files_changed,omitempty"`
	FilesFailed     []FileRef                  `json:"files_failed,omitempty" yaml:"files_failed,omitempty"`
	PRURL           string                     `json:"pr_url,omitempty" yaml:"pr_url,omitempty"`
	Extra           map[string]json.RawMessage `json:"-" yaml:"-"`
}

// MappingKeys returns the variable mapping keys sorted.
func (r MigrationResult) MappingKeys() []string {
	keys := make([]string, 0, len(r.VariableMapping))
	for k := range r.VariableMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// envelopeFields belong to the job status, not to its result.
var envelopeFields = map[string]bool{
	"migration_id": true,
	"status":       true,
	"progress":     true,
	"result":       true,
	"error":        true,
}

// absorb copies the result fields it recognises from fields. A field whose
// value does not fit its type goes to Extra instead of failing the decode.
func (r *MigrationResult) absorb(fields map[string]json.RawMessage) {
	for key, raw := range fields {
		var ok bool
		switch key {
		case "refactored_code":
			ok = decodeField(raw, &r.RefactoredCode)
		case "variable_mapping":
			ok = decodeField(raw, &r.VariableMapping)
		case "files_changed":
			ok = decodeField(raw, &r.FilesChanged)
		case "files_failed":
			ok = decodeField(raw, &r.FilesFailed)
		case "pr_url":
			ok = decodeField(raw, &r.PRURL)
		default:
			continue
		}
		if !ok {
			r.keep(key, raw)
		}
	}
}

func (r *MigrationResult) keep(key string, raw json.RawMessage) {
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[key] = raw
}

func decodeField[T any](raw json.RawMessage, dst *T) bool {
	var v T
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	*dst = v
	return true
}

// decodeResult reads a result object. Unknown fields and fields with an
// unexpected shape are kept in Extra.
func decodeResult(payload []byte) (MigrationResult, error) {
	var result MigrationResult
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return result, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return MigrationResult{}, err
	}
	result.absorb(fields)
	for key, raw := range fields {
		switch key {
		case "refactored_code", "variable_mapping", "files_changed", "files_failed", "pr_url":
			continue
		}
		if !envelopeFields[key] {
			result.keep(key, raw)
		}
	}
	return result, nil
}

// MergeResult builds the final result of a completed job. The nested result
// payload is the base; top-level fields override it when present.
func MergeResult(status JobStatus) MigrationResult {
	merged, err := decodeResult(status.Result)
	if err != nil {
		merged = MigrationResult{Extra: map[string]json.RawMessage{"result": status.Result}}
	}
	if status.RefactoredCode != "" {
		merged.RefactoredCode = status.RefactoredCode
	}
	if len(status.VariableMapping) > 0 {
		merged.VariableMapping = status.VariableMapping
	}
	if len(status.FilesChanged) > 0 {
		merged.FilesChanged = status.FilesChanged
	}
	if len(status.FilesFailed) > 0 {
		merged.FilesFailed = status.FilesFailed
	}
	if status.PRURL != "" {
		merged.PRURL = status.PRURL
	}
	for key, raw := range status.Extra {
		merged.keep(key, raw)
	}
	return merged
}
