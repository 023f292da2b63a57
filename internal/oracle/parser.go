package oracle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"folio/internal/card"
	"folio/internal/logging"
)

const maxLineBytes = 1 << 20

// Stats summarises one parse pass.
type Stats struct {
	Lines         int
	Records       int
	SkippedBlocks int
	CostMisses    int
	Elapsed       time.Duration
}

// Parser turns a corpus stream into rulings.
type Parser struct {
	logger *slog.Logger
	stats  Stats
}

// NewParser returns a parser that reports pass statistics to logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logging.NewComponentLogger(logger, "oracle")}
}

// Parse reads the whole corpus from r. Records keep corpus order. A read
// error aborts the pass and no records are returned.
func Parse(r io.Reader) ([]card.Ruling, error) {
	return NewParser(nil).Parse(r)
}

// Parse reads the whole corpus from r.
func (p *Parser) Parse(r io.Reader) ([]card.Ruling, error) {
	started := time.Now()
	p.stats = Stats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		records []card.Ruling
		block   = make([]string, 0, 10)
	)
	flush := func() {
		if rec, ok := p.parseBlock(block); ok {
			records = append(records, rec)
		}
		block = block[:0]
	}

	for scanner.Scan() {
		p.stats.Lines++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus at line %d: %w", p.stats.Lines+1, err)
	}
	flush()

	p.stats.Records = len(records)
	p.stats.Elapsed = time.Since(started)
	p.logger.Debug("corpus parsed",
		logging.Int("lines", p.stats.Lines),
		logging.Int("records", p.stats.Records),
		logging.Int("skipped_blocks", p.stats.SkippedBlocks),
		logging.Int("cost_misses", p.stats.CostMisses),
		logging.Duration("elapsed", p.stats.Elapsed))
	return records, nil
}

// Stats returns the statistics of the most recent pass.
func (p *Parser) Stats() Stats {
	return p.stats
}

func (p *Parser) parseBlock(lines []string) (card.Ruling, bool) {
	if len(lines) == 0 {
		return card.Ruling{}, false
	}
	if len(lines) < 2 {
		p.stats.SkippedBlocks++
		return card.Ruling{}, false
	}

	rec := card.Ruling{Name: lines[0]}
	i := 1
	if cost, err := card.ParseCost(lines[i]); err == nil {
		rec.Cost = cost
		i++
	} else {
		p.stats.CostMisses++
	}

	if i < len(lines) {
		rec.Types = card.ParseTypes(lines[i])
		i++
	}

	rec.RulesText = make([]string, 0, len(lines)-i)
	rec.RulesText = append(rec.RulesText, lines[i:]...)
	return rec, true
}
