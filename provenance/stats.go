// Package provenance keeps the record of what a compression run did: a
// fixed word blob written back into SDRAM for the host to collect, a JSON
// rendering for tooling, and a SQLite history of runs and merged filters.
package provenance

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"rtcompress/search"
	"rtcompress/shared"
	"rtcompress/wire"
)

// BlobWords is the size of the SDRAM provenance record.
const BlobWords = 12 + 8

var ErrShortBlob = errors.New("provenance: blob too short")

// Stats is the provenance of one run.
type Stats struct {
	Status           uint32 `json:"status"`
	StatusName       string `json:"status_name"`
	State            string `json:"state"`
	BestSearchPoint  int    `json:"best_search_point"`
	Filters          int    `json:"filters"`
	Candidates       int    `json:"candidates"`
	Rounds           int    `json:"rounds"`
	Attempts         int    `json:"attempts"`
	FailedAttempts   int    `json:"failed_attempts"`
	TimedOut         int    `json:"timed_out"`
	Regenerated      bool   `json:"regenerated"`
	OriginalEntries  int    `json:"original_entries"`
	LoadedEntries    int    `json:"loaded_entries"`
	MergedFilters    int    `json:"merged_filters"`
	RedundantPackets uint64 `json:"redundant_packets"`
	ArenaPeakWords   int    `json:"arena_peak_words"`
	Fingerprint      string `json:"fingerprint"`

	Merged []search.FilterSummary `json:"merged,omitempty"`
}

// FromReport collects a run's report and final status.
func FromReport(rep search.Report, status *shared.Status) Stats {
	return Stats{
		Status:           status.Code(),
		StatusName:       shared.CodeName(status.Code()),
		State:            rep.State.String(),
		BestSearchPoint:  rep.BestSearchPoint,
		Filters:          rep.Filters,
		Candidates:       rep.Candidates,
		Rounds:           rep.Rounds,
		Attempts:         rep.Attempts,
		FailedAttempts:   rep.FailedAttempts,
		TimedOut:         rep.TimedOut,
		Regenerated:      rep.Regenerated,
		OriginalEntries:  rep.OriginalEntries,
		LoadedEntries:    rep.LoadedEntries,
		MergedFilters:    rep.MergedFilters,
		RedundantPackets: rep.RedundantPackets,
		ArenaPeakWords:   rep.ArenaPeak,
		Fingerprint:      hex.EncodeToString(rep.Fingerprint[:]),
		Merged:           rep.Merged,
	}
}

// JSON renders s.
func (s Stats) JSON() ([]byte, error) {
	return sonnet.Marshal(s)
}

// ParseJSON is the inverse of JSON.
func ParseJSON(b []byte) (Stats, error) {
	var s Stats
	if err := sonnet.Unmarshal(b, &s); err != nil {
		return Stats{}, fmt.Errorf("provenance json: %w", err)
	}
	return s, nil
}

// ───────────────────────────── SDRAM blob ───────────────────────────────────

// Words lays s out as BlobWords words: the counters, then the fingerprint.
// TimedOut shares its word with the regenerated flag in bit 31.
func (s Stats) Words() []uint32 {
	regen := uint32(0)
	if s.Regenerated {
		regen = 1
	}
	words := []uint32{
		s.Status,
		uint32(int32(s.BestSearchPoint)),
		uint32(s.Filters),
		uint32(s.Candidates),
		uint32(s.Rounds),
		uint32(s.Attempts),
		uint32(s.FailedAttempts),
		uint32(s.TimedOut) | regen<<31,
		uint32(s.OriginalEntries),
		uint32(s.LoadedEntries),
		uint32(s.MergedFilters),
		uint32(s.RedundantPackets),
	}
	var fp [32]byte
	hex.Decode(fp[:], []byte(s.Fingerprint)) // a malformed fingerprint encodes as zeros
	for i := 0; i < 8; i++ {
		words = append(words, wire.U32(fp[4*i:]))
	}
	return words
}

// Encode is Words as little-endian bytes.
func (s Stats) Encode() []byte { return wire.Encode(s.Words()...) }

// Decode reads a blob written by Encode. Merged-filter detail and the
// arena peak are not part of the blob.
func Decode(r *wire.Reader) (Stats, error) {
	var words [BlobWords]uint32
	if err := r.Words(words[:], BlobWords); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrShortBlob, err)
	}
	s := Stats{
		Status:           words[0],
		StatusName:       shared.CodeName(words[0]),
		BestSearchPoint:  int(int32(words[1])),
		Filters:          int(words[2]),
		Candidates:       int(words[3]),
		Rounds:           int(words[4]),
		Attempts:         int(words[5]),
		FailedAttempts:   int(words[6]),
		TimedOut:         int(words[7] &^ (1 << 31)),
		Regenerated:      words[7]>>31 != 0,
		OriginalEntries:  int(words[8]),
		LoadedEntries:    int(words[9]),
		MergedFilters:    int(words[10]),
		RedundantPackets: uint64(words[11]),
	}
	var fp [32]byte
	for i := 0; i < 8; i++ {
		wire.PutU32(fp[4*i:], words[12+i])
	}
	s.Fingerprint = hex.EncodeToString(fp[:])
	return s, nil
}

// WriteBlob stores s at addr.
func WriteBlob(mem Placer, addr uint32, s Stats) error {
	for i, w := range s.Words() {
		if err := mem.SetWord(addr+uint32(4*i), w); err != nil {
			return fmt.Errorf("provenance blob: %w", err)
		}
	}
	return nil
}

// Placer is the SDRAM access WriteBlob needs.
type Placer interface {
	SetWord(addr, v uint32) error
}
