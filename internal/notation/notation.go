// Package notation converts engine move identifiers into the indexed legal-move
// mapping shown to peers and into a movetext game record.
package notation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chessbench-go/internal/domain"
)

// Move pairs an engine move identifier (UCI) with its human-readable SAN.
type Move struct {
	ID  string
	SAN string
}

// LegalIndex is a stable mapping from 1-based index tokens to legal moves.
type LegalIndex struct {
	tokens []string
	moves  map[string]Move
}

// Index assigns tokens "1".."n" to moves in the order given.
func Index(moves []Move) LegalIndex {
	ix := LegalIndex{
		tokens: make([]string, 0, len(moves)),
		moves:  make(map[string]Move, len(moves)),
	}
	for i, mv := range moves {
		token := strconv.Itoa(i + 1)
		ix.tokens = append(ix.tokens, token)
		ix.moves[token] = mv
	}
	return ix
}

func (ix LegalIndex) Len() int { return len(ix.tokens) }

func (ix LegalIndex) Tokens() []string { return append([]string(nil), ix.tokens...) }

func (ix LegalIndex) Lookup(token string) (Move, bool) {
	mv, ok := ix.moves[token]
	return mv, ok
}

// TokenForSAN returns the token whose move renders as san.
func (ix LegalIndex) TokenForSAN(san string) (string, bool) {
	for _, token := range ix.tokens {
		if ix.moves[token].SAN == san {
			return token, true
		}
	}
	return "", false
}

// String renders the mapping as {'1': 'e4', '2': 'Nf3'}.
func (ix LegalIndex) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, token := range ix.tokens {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': '%s'", token, ix.moves[token].SAN)
	}
	b.WriteByte('}')
	return b.String()
}

var indexEntryPattern = regexp.MustCompile(`'([^']*)':\s*'([^']*)'`)

// ParseIndex reads a mapping produced by LegalIndex.String. Parsed moves carry
// only their SAN.
func ParseIndex(s string) (LegalIndex, error) {
	matches := indexEntryPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return LegalIndex{}, fmt.Errorf("no legal move entries found")
	}
	ix := LegalIndex{
		tokens: make([]string, 0, len(matches)),
		moves:  make(map[string]Move, len(matches)),
	}
	for _, m := range matches {
		token := strings.TrimSpace(m[1])
		if _, dup := ix.moves[token]; dup {
			return LegalIndex{}, fmt.Errorf("duplicate token %q", token)
		}
		ix.tokens = append(ix.tokens, token)
		ix.moves[token] = Move{SAN: strings.TrimSpace(m[2])}
	}
	return ix, nil
}

// Replay converts a UCI history into SAN by replaying it from the initial position.
func Replay(history []string) ([]string, error) {
	game := nchess.NewGame()
	uci := nchess.UCINotation{}
	san := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(history))
	for _, id := range history {
		pos := game.Position()
		mv, err := uci.Decode(pos, strings.ToLower(strings.TrimSpace(id)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", id, err)
		}
		encoded := san.Encode(pos, mv)
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", id, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

// ResultToken renders engine returns as a game-record result ("1-0", "0-1",
// "1/2-1/2"), or "*" while the game is still running.
func ResultToken(returns []float64, seats domain.Seating) string {
	if len(returns) == 0 {
		return "*"
	}
	wi, bi := seats.Index(domain.White), seats.Index(domain.Black)
	if wi >= len(returns) || bi >= len(returns) {
		return "*"
	}
	w, okW := returnToken(returns[wi])
	b, okB := returnToken(returns[bi])
	if !okW || !okB {
		return "*"
	}
	return w + "-" + b
}

func returnToken(v float64) (string, bool) {
	switch v {
	case -1:
		return "0", true
	case 0:
		return "1/2", true
	case 1:
		return "1", true
	default:
		return "", false
	}
}

// Movetext numbers SAN moves and appends the result token, on one line.
func Movetext(sans []string, result string) string {
	if strings.TrimSpace(result) == "" {
		result = "*"
	}
	var b strings.Builder
	for i := 0; i < len(sans); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(sans[i]))
		if i+1 < len(sans) {
			b.WriteString(strings.TrimSpace(sans[i+1]))
			b.WriteByte(' ')
		}
	}
	b.WriteString(result)
	return b.String()
}

// Header holds the tag pairs written ahead of the movetext.
type Header struct {
	Event string
	Site  string
	Date  time.Time
	Round string
	White string
	Black string
}

// PGN renders a complete game record with the seven-tag roster.
func PGN(h Header, sans []string, result string) string {
	if strings.TrimSpace(result) == "" {
		result = "*"
	}
	event := orUnknown(h.Event)
	date := "????.??.??"
	if !h.Date.IsZero() {
		date = fmt.Sprintf("%04d.%02d.%02d", h.Date.Year(), int(h.Date.Month()), h.Date.Day())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitize(event))
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitize(orUnknown(h.Site)))
	fmt.Fprintf(&b, "[Date \"%s\"]\n", date)
	fmt.Fprintf(&b, "[Round \"%s\"]\n", sanitize(orUnknown(h.Round)))
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitize(orUnknown(h.White)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitize(orUnknown(h.Black)))
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)
	b.WriteString(Movetext(sans, result))
	b.WriteByte('\n')
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
