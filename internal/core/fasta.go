package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"evocore/pkg/domain"
)

const fastaLineWidth = 80

// WriteFASTA emits every library member as a FASTA record. Sequences are
// materialized through the lineage graph, so child variants resolve to
// their realized sequence rather than their edit set.
func WriteFASTA(w io.Writer, graph *LineageGraph, lib domain.Library) error {
	bw := bufio.NewWriter(w)
	for _, id := range lib.IDs() {
		seq, err := graph.SequenceOf(id)
		if err != nil {
			return fmt.Errorf("materialize %s: %w", id, err)
		}
		if _, err := fmt.Fprintf(bw, ">%s\n", id); err != nil {
			return err
		}
		for len(seq) > 0 {
			n := fastaLineWidth
			if len(seq) < n {
				n = len(seq)
			}
			if _, err := fmt.Fprintln(bw, seq[:n]); err != nil {
				return err
			}
			seq = seq[n:]
		}
	}
	return bw.Flush()
}

// FASTARecord is a single parsed FASTA entry.
type FASTARecord struct {
	ID       string
	Sequence string
}

// ReadFASTA parses FASTA records, taking the first whitespace-delimited
// token of each header as the record id.
func ReadFASTA(r io.Reader) ([]FASTARecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var records []FASTARecord
	var current *FASTARecord
	var seq strings.Builder
	line := 0
	flush := func() {
		if current != nil {
			current.Sequence = seq.String()
			records = append(records, *current)
			seq.Reset()
		}
	}
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, ">") {
			flush()
			header := strings.TrimSpace(text[1:])
			if header == "" {
				return nil, fmt.Errorf("line %d: empty fasta header", line)
			}
			id := strings.Fields(header)[0]
			current = &FASTARecord{ID: id}
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: sequence data before first header", line)
		}
		seq.WriteString(text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return records, nil
}
