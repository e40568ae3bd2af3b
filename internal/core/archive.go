package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"evocore/internal/blob"
	"evocore/pkg/domain"
)

// RoundArchive lists the objects written for an archived round.
type RoundArchive struct {
	RoundIndex int         `json:"round_index"`
	Objects    []blob.Info `json:"objects"`
}

func archiveKey(index int, name string) string {
	return fmt.Sprintf("rounds/%d/%s", index, name)
}

// ArchiveRound exports a completed round to the archive store: the
// measured library as FASTA, its labels as CSV and the round record as
// JSON. The blob layer rejects overwrites, so re-archiving a round fails
// rather than silently replacing a prior export.
func (s *Service) ArchiveRound(ctx context.Context, index int, store blob.Store) (RoundArchive, error) {
	archive := RoundArchive{RoundIndex: index}
	err := s.run(ctx, "archive_round", func(ctx context.Context) (string, error) {
		var round Round
		var lib Library
		var labels []Label
		graph := NewLineageGraph()
		err := s.store.View(ctx, func(view domain.TransactionView) error {
			var ok bool
			round, ok = view.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			if round.Status != StatusComplete {
				return domain.CampaignStateError{Status: round.Status, Action: "archive the round"}
			}
			graph.Load(view.ListVariants())
			lib = libraryFromView(view, func(v Variant) bool { return v.ExperimentIn(index) })
			for _, id := range lib.IDs() {
				labels = append(labels, lib.LabelsFor(id)...)
			}
			return nil
		})
		if err != nil {
			return fmt.Sprintf("round-%d", index), err
		}

		var fasta bytes.Buffer
		if err := WriteFASTA(&fasta, graph, lib); err != nil {
			return fmt.Sprintf("round-%d", index), err
		}
		var sheet bytes.Buffer
		if err := WriteLabels(&sheet, labels); err != nil {
			return fmt.Sprintf("round-%d", index), err
		}
		record, err := json.MarshalIndent(round, "", "  ")
		if err != nil {
			return fmt.Sprintf("round-%d", index), err
		}

		meta := map[string]string{"round": strconv.Itoa(index)}
		objects := []struct {
			name        string
			contentType string
			body        []byte
		}{
			{"library.fasta", "text/x-fasta", fasta.Bytes()},
			{"labels.csv", "text/csv", sheet.Bytes()},
			{"round.json", "application/json", record},
		}
		for _, obj := range objects {
			info, err := store.Put(ctx, archiveKey(index, obj.name), bytes.NewReader(obj.body), blob.PutOptions{
				ContentType: obj.contentType,
				Metadata:    meta,
			})
			if err != nil {
				return fmt.Sprintf("round-%d", index), fmt.Errorf("archive %s: %w", obj.name, err)
			}
			archive.Objects = append(archive.Objects, info)
		}
		return fmt.Sprintf("round-%d", index), nil
	})
	return archive, err
}

// ListArchives enumerates the archive objects stored for a round.
func (s *Service) ListArchives(ctx context.Context, index int, store blob.Store) ([]blob.Info, error) {
	return store.List(ctx, fmt.Sprintf("rounds/%d/", index))
}
