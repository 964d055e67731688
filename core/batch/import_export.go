package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

var csvBaseHeaders = []string{"id", "status", "error_message", "processed_at"}

// ExportCSV writes the job's items as CSV. Payload fields appear as
// data_-prefixed columns, in sorted order so the output is stable.
func (e *Engine) ExportCSV(w io.Writer, jobID string) error {
	job, ok := e.GetJob(jobID)
	if !ok {
		return ErrJobNotFound
	}

	var dataKeys []string
	if len(job.Items) > 0 {
		for k := range job.Items[0].Data {
			dataKeys = append(dataKeys, k)
		}
		sort.Strings(dataKeys)
	}
	headers := append(append([]string(nil), csvBaseHeaders...), prefixed(dataKeys)...)

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, item := range job.Items {
		row := make([]string, 0, len(headers))
		processedAt := ""
		if item.ProcessedAt != nil {
			processedAt = item.ProcessedAt.Format(time.RFC3339)
		}
		row = append(row, item.ID, item.Status, item.ErrorMessage, processedAt)
		for _, k := range dataKeys {
			row = append(row, fmt.Sprintf("%v", item.Data[k]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes the whole job, items included, as indented JSON.
func (e *Engine) ExportJSON(w io.Writer, jobID string) error {
	job, ok := e.GetJob(jobID)
	if !ok {
		return ErrJobNotFound
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

// ImportCSV creates a pending job from CSV rows. Bookkeeping columns from a
// prior export (id, status, error_message, processed_at) are ignored; every
// other column becomes a payload field, with any data_ prefix stripped.
// When name is empty one is derived from the type and the current time.
func (e *Engine) ImportCSV(r io.Reader, t Type, name, description string, metadata map[string]any) (string, error) {
	if _, err := ParseType(string(t)); err != nil {
		return "", err
	}
	cr := csv.NewReader(r)
	headers, err := cr.Read()
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}

	var items []map[string]any
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv row: %w", err)
		}
		data := map[string]any{}
		for i, h := range headers {
			if i >= len(row) || bookkeepingColumn(h) {
				continue
			}
			data[strings.TrimPrefix(h, "data_")] = row[i]
		}
		items = append(items, data)
	}

	if name == "" {
		name = fmt.Sprintf("Imported %s Batch - %s", t, e.now().Format("2006-01-02 15:04:05"))
	}
	id, err := e.CreateJob(name, t, items, description, metadata)
	if err != nil {
		return "", err
	}
	e.logger.Printf("imported %d items into batch job %s", len(items), id)
	return id, nil
}

// ImportJSON restores a previously exported job, counters and item states
// included. The restored job keeps its original id; an existing job under
// that id is rejected.
func (e *Engine) ImportJSON(r io.Reader) (string, error) {
	var job Job
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("job record has no id")
	}
	if _, err := ParseType(string(job.Type)); err != nil {
		return "", err
	}
	if _, err := ParseStatus(string(job.Status)); err != nil {
		return "", err
	}
	job.TotalItems = len(job.Items)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.jobs[job.ID]; exists {
		return "", fmt.Errorf("batch job %s already exists", job.ID)
	}
	e.jobs[job.ID] = &job
	e.logger.Printf("restored batch job %s (%s)", job.ID, job.Status)
	return job.ID, nil
}

func prefixed(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, "data_"+k)
	}
	return out
}

func bookkeepingColumn(h string) bool {
	switch {
	case strings.HasPrefix(h, "id"),
		strings.HasPrefix(h, "status"),
		strings.HasPrefix(h, "error"),
		strings.HasPrefix(h, "processed"):
		return true
	}
	return false
}
