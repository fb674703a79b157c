// Package incidence stores, per feature, the list of (match, team, degree)
// occurrences in a compact delta + varint byte stream.
//
// Each record encodes the distance in team slots from the previous record of
// the same feature, so a feature's records must be written in non-decreasing
// (match, team) order. Most features occur in runs of nearby matches with
// degree 1, which takes a single byte.
package incidence

import (
	"errors"
	"fmt"
	"iter"
)

// ErrNonMonotonic is returned when a record would precede the feature's previous record.
var ErrNonMonotonic = errors.New("incidence records must be written in (match, team) order")

// Record is one occurrence of a feature in a team.
type Record struct {
	Match  int
	Team   int
	Degree int
}

// buffer is the append-only stream of one feature.
type buffer struct {
	data      []byte
	lastMatch int
	lastTeam  int
	records   int
}

// Codec holds the incidence streams of every feature of a corpus.
type Codec struct {
	teamCounts []int
	buffers    []buffer
}

// NewCodec creates a codec for numFeatures features and no matches.
func NewCodec(numFeatures int) *Codec {
	return &Codec{buffers: make([]buffer, numFeatures)}
}

// AddMatch registers a match with the given number of teams and returns its index.
func (c *Codec) AddMatch(teams int) int {
	c.teamCounts = append(c.teamCounts, teams)
	return len(c.teamCounts) - 1
}

// Matches returns the number of registered matches.
func (c *Codec) Matches() int { return len(c.teamCounts) }

// Teams returns the number of teams of match m.
func (c *Codec) Teams(m int) int { return c.teamCounts[m] }

// Features returns the number of feature streams.
func (c *Codec) Features() int { return len(c.buffers) }

// Write appends a record to the feature's stream. A zero degree is ignored.
func (c *Codec) Write(feature, match, team, degree int) error {
	if degree == 0 {
		return nil
	}
	if feature < 0 || feature >= len(c.buffers) {
		return fmt.Errorf("write feature %d: out of range [0,%d)", feature, len(c.buffers))
	}
	if match < 0 || match >= len(c.teamCounts) {
		return fmt.Errorf("write feature %d: match %d not registered", feature, match)
	}
	if team < 0 || team >= c.teamCounts[match] {
		return fmt.Errorf("write feature %d: team %d out of range for match %d", feature, team, match)
	}

	b := &c.buffers[feature]
	if match < b.lastMatch {
		return fmt.Errorf("feature %d: match %d after match %d: %w", feature, match, b.lastMatch, ErrNonMonotonic)
	}
	delta := team - b.lastTeam
	for m := b.lastMatch; m < match; m++ {
		delta += c.teamCounts[m]
	}
	if delta < 0 {
		return fmt.Errorf("feature %d: team %d after team %d of match %d: %w", feature, team, b.lastTeam, match, ErrNonMonotonic)
	}

	x := uint64(delta) << 1
	if degree != 1 {
		x |= 1
	}
	b.data = appendVarint(b.data, x)
	if degree != 1 {
		b.data = appendVarint(b.data, foldDegree(degree))
	}
	b.lastMatch = match
	b.lastTeam = team
	b.records++
	return nil
}

// Records iterates the feature's records in written order.
func (c *Codec) Records(feature int) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		b := &c.buffers[feature]
		data := b.data
		match, team := 0, 0
		for len(data) > 0 {
			x, n := readVarint(data)
			data = data[n:]

			degree := 1
			if x&1 != 0 {
				f, n := readVarint(data)
				data = data[n:]
				degree = unfoldDegree(f)
			}

			team += int(x >> 1)
			for team >= c.teamCounts[match] {
				team -= c.teamCounts[match]
				match++
			}

			if !yield(Record{Match: match, Team: team, Degree: degree}) {
				return
			}
		}
	}
}

// ReadAll calls fn for every record of the feature in written order.
func (c *Codec) ReadAll(feature int, fn func(Record)) {
	for r := range c.Records(feature) {
		fn(r)
	}
}

// Occurrences returns the number of records written for the feature.
func (c *Codec) Occurrences(feature int) int { return c.buffers[feature].records }

// Bytes returns the encoded size of the feature's stream.
func (c *Codec) Bytes(feature int) int { return len(c.buffers[feature].data) }

// TotalBytes returns the encoded size of every stream.
func (c *Codec) TotalBytes() int {
	total := 0
	for i := range c.buffers {
		total += len(c.buffers[i].data)
	}
	return total
}

// appendVarint encodes x in base 128, most significant group first.
// Every byte but the last has the 0x80 continuation bit set.
func appendVarint(dst []byte, x uint64) []byte {
	var tmp [10]byte
	n := len(tmp) - 1
	tmp[n] = byte(x & 0x7f)
	for x >>= 7; x != 0; x >>= 7 {
		n--
		tmp[n] = byte(x&0x7f) | 0x80
	}
	return append(dst, tmp[n:]...)
}

// readVarint decodes a value written by appendVarint and returns it with its length.
func readVarint(src []byte) (uint64, int) {
	var x uint64
	for i, b := range src {
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return x, i + 1
		}
	}
	panic("incidence: truncated varint")
}

// foldDegree maps a degree other than 0 and 1 to a non-negative integer:
// negative degrees become even, positive ones odd.
func foldDegree(d int) uint64 {
	if d < 0 {
		return uint64(-d)*2 - 2
	}
	return uint64(d)*2 - 1
}

func unfoldDegree(f uint64) int {
	if f&1 == 0 {
		return -int(f/2) - 1
	}
	return int((f + 1) / 2)
}
