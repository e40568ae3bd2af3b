package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"evocore/pkg/domain"
)

// ReadLabels parses measurement rows from CSV. The header must contain
// variant_id, name and value columns; an optional corrected column marks
// replacement measurements. Round scoping is applied at ingestion via
// Service.SetLabels, so the file carries none.
func ReadLabels(r io.Reader) ([]Label, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"variant_id", "name", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var labels []Label
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[cols["value"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value: %w", line, err)
		}
		label := Label{
			VariantID: strings.TrimSpace(record[cols["variant_id"]]),
			Name:      strings.TrimSpace(record[cols["name"]]),
			Value:     value,
		}
		if label.VariantID == "" || label.Name == "" {
			return nil, fmt.Errorf("line %d: variant_id and name must not be empty", line)
		}
		if idx, ok := cols["corrected"]; ok && idx < len(record) {
			corrected, parseErr := strconv.ParseBool(strings.TrimSpace(record[idx]))
			if parseErr == nil {
				label.Corrected = corrected
			}
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// WriteLabels emits labels as CSV in the same column layout ReadLabels
// accepts.
func WriteLabels(w io.Writer, labels []domain.Label) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"variant_id", "name", "value", "corrected"}); err != nil {
		return err
	}
	for _, label := range labels {
		record := []string{
			label.VariantID,
			label.Name,
			strconv.FormatFloat(label.Value, 'g', -1, 64),
			strconv.FormatBool(label.Corrected),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
