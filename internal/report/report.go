// Package report renders analysis results, migration results and the service
// catalog as tables, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/katistix/cloudmigrate/internal/backend"
)

// Format is an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unsupported output format %q (expected table, json or yaml)", value)
}

// Job is the printable outcome of a migration job.
type Job struct {
	MigrationID string                   `json:"migration_id,omitempty" yaml:"migration_id,omitempty"`
	Kind        string                   `json:"kind" yaml:"kind"`
	Status      string                   `json:"status" yaml:"status"`
	Error       string                   `json:"error,omitempty" yaml:"error,omitempty"`
	Result      *backend.MigrationResult `json:"result,omitempty" yaml:"result,omitempty"`
	Extra       map[string]any           `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// NewJob builds a Job, decoding the result's unrecognised fields.
func NewJob(migrationID, kind, status string, err error, result *backend.MigrationResult) Job {
	job := Job{MigrationID: migrationID, Kind: kind, Status: status, Result: result}
	if err != nil {
		job.Error = err.Error()
	}
	if result != nil && len(result.Extra) > 0 {
		job.Extra = make(map[string]any, len(result.Extra))
		for key, raw := range result.Extra {
			var value any
			if json.Unmarshal(raw, &value) != nil {
				value = string(raw)
			}
			job.Extra[key] = value
		}
	}
	return job
}

// Printer writes reports in one format.
type Printer struct {
	out    io.Writer
	format Format
}

func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

// Analysis prints the services detected in a repository.
func (p *Printer) Analysis(result backend.AnalysisResult) error {
	if p.format != FormatTable {
		return p.encode(result)
	}
	fmt.Fprintf(p.out, "Repository ID: %s\n\n", result.RepositoryID)
	if len(result.MAR.ServicesDetected) == 0 {
		fmt.Fprintln(p.out, "No cloud services detected.")
		return nil
	}
	table := tablewriter.NewWriter(p.out)
	table.Header("Service", "Confidence", "Files")
	for _, service := range result.MAR.ServicesDetected {
		confidence := ""
		if service.Confidence > 0 {
			confidence = fmt.Sprintf("%.0f%%", service.Confidence*100)
		}
		if err := table.Append(service.ServiceName, confidence, strings.Join(service.Files, "\n")); err != nil {
			return err
		}
	}
	return table.Render()
}

// Job prints the outcome of a migration job.
func (p *Printer) Job(job Job) error {
	if p.format != FormatTable {
		return p.encode(job)
	}

	summary := tablewriter.NewWriter(p.out)
	summary.Header("Field", "Value")
	rows := [][]string{{"Status", job.Status}, {"Kind", job.Kind}}
	if job.MigrationID != "" {
		rows = append(rows, []string{"Migration ID", job.MigrationID})
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", job.Error})
	}
	if r := job.Result; r != nil {
		if r.PRURL != "" {
			rows = append(rows, []string{"Pull request", r.PRURL})
		}
		if len(r.FilesChanged) > 0 || len(r.FilesFailed) > 0 {
			rows = append(rows, []string{"Files", fmt.Sprintf("%d changed, %d failed", len(r.FilesChanged), len(r.FilesFailed))})
		}
	}
	for _, row := range rows {
		if err := summary.Append(row[0], row[1]); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	r := job.Result
	if r == nil {
		return nil
	}
	if len(r.VariableMapping) > 0 {
		fmt.Fprintln(p.out, "\nVariable mapping")
		mapping := tablewriter.NewWriter(p.out)
		mapping.Header("Source", "Target")
		for _, key := range r.MappingKeys() {
			if err := mapping.Append(key, FormatValue(r.VariableMapping[key])); err != nil {
				return err
			}
		}
		if err := mapping.Render(); err != nil {
			return err
		}
	}
	if len(r.FilesChanged) > 0 || len(r.FilesFailed) > 0 {
		fmt.Fprintln(p.out, "\nFiles")
		files := tablewriter.NewWriter(p.out)
		files.Header("Path", "Status", "Detail")
		for _, f := range r.FilesChanged {
			if err := files.Append(f.Path, "changed", f.Detail); err != nil {
				return err
			}
		}
		for _, f := range r.FilesFailed {
			if err := files.Append(f.Path, "failed", f.Detail); err != nil {
				return err
			}
		}
		if err := files.Render(); err != nil {
			return err
		}
	}
	if r.RefactoredCode != "" {
		fmt.Fprintf(p.out, "\nRefactored code\n\n%s\n", strings.TrimRight(r.RefactoredCode, "\n"))
	}
	return nil
}

// Catalog prints the services of the given providers, or of every provider
// when none is given.
func (p *Printer) Catalog(catalog backend.Catalog, providers ...backend.Provider) error {
	if len(providers) == 0 {
		for provider := range catalog {
			providers = append(providers, provider)
		}
		sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	}
	if p.format != FormatTable {
		view := make(map[backend.Provider][]backend.ServiceInfo, len(providers))
		for _, provider := range providers {
			view[provider] = catalog.Services(provider)
		}
		return p.encode(view)
	}
	table := tablewriter.NewWriter(p.out)
	table.Header("Provider", "ID", "Name", "Description")
	for _, provider := range providers {
		for _, service := range catalog.Services(provider) {
			if err := table.Append(string(provider), service.ID, service.Name, service.Description); err != nil {
				return err
			}
		}
	}
	return table.Render()
}

func (p *Printer) encode(value any) error {
	switch p.format {
	case FormatJSON:
		encoder := json.NewEncoder(p.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case FormatYAML:
		encoder := yaml.NewEncoder(p.out)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	}
	return fmt.Errorf("unsupported output format %q", p.format)
}

// FormatValue renders a variable mapping value on one line.
func FormatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}
