package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cryptovista/forecast-go/internal/config"
	"github.com/cryptovista/forecast-go/internal/models"
)

// columnCount is the fixed layout of a daily OHLCV export:
// unix, date, symbol, open, high, low, close, volumeBase, volumeQuote,
// tradeCount.
const columnCount = 10

// Ingestor parses raw delimited OHLCV text into ordered bars. Malformed
// rows are dropped and counted, never fatal; only an unreadable source
// aborts the run.
type Ingestor struct {
	delimiter   string
	headerLines int
	logger      *logrus.Logger
}

func NewIngestor(cfg config.IngestConfig, logger *logrus.Logger) *Ingestor {
	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	return &Ingestor{
		delimiter:   delimiter,
		headerLines: cfg.HeaderLines,
		logger:      logger,
	}
}

// IngestText parses in-memory source text.
func (in *Ingestor) IngestText(ctx context.Context, text string) ([]models.Bar, int, error) {
	return in.ingest(ctx, strings.NewReader(text))
}

// IngestFile reads and parses a source file. An unreadable file is an
// ingest error; the caller cannot recover within the run.
func (in *Ingestor) IngestFile(ctx context.Context, path string) ([]models.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, models.WrapError(models.ErrKindIngest, err, "cannot open source file %s", path)
	}
	defer f.Close()
	return in.ingest(ctx, f)
}

func (in *Ingestor) ingest(ctx context.Context, r io.Reader) ([]models.Bar, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var bars []models.Bar
	dropped := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		if lineNo <= in.headerLines {
			continue
		}
		// Cancellation check amortized over large files.
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, dropped, models.WrapError(models.ErrKindCancelled, err, "ingestion cancelled at line %d", lineNo)
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		bar, err := in.parseLine(line)
		if err != nil {
			dropped++
			in.logger.WithFields(logrus.Fields{
				"line":  lineNo,
				"error": err.Error(),
			}).Warn("Dropping malformed row")
			continue
		}
		bars = append(bars, bar)
	}

	if err := scanner.Err(); err != nil {
		return nil, dropped, models.WrapError(models.ErrKindIngest, err, "failed reading source")
	}

	in.logger.WithFields(logrus.Fields{
		"rows":    len(bars),
		"dropped": dropped,
	}).Info("Ingestion complete")

	return bars, dropped, nil
}

func (in *Ingestor) parseLine(line string) (models.Bar, error) {
	fields := strings.Split(line, in.delimiter)
	if len(fields) != columnCount {
		return models.Bar{}, models.NewError(models.ErrKindParse, "expected %d columns, got %d", columnCount, len(fields))
	}

	unix, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return models.Bar{}, models.NewError(models.ErrKindParse, "non-numeric timestamp %q", fields[0])
	}

	floats := make([]float64, 6)
	for i, idx := range []int{3, 4, 5, 6, 7, 8} {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
		if err != nil {
			return models.Bar{}, models.NewError(models.ErrKindParse, "non-numeric value %q in column %d", fields[idx], idx)
		}
		floats[i] = v
	}

	tradeCount, err := strconv.ParseInt(strings.TrimSpace(fields[9]), 10, 64)
	if err != nil {
		return models.Bar{}, models.NewError(models.ErrKindParse, "non-numeric trade count %q", fields[9])
	}

	return models.Bar{
		Unix:        unix,
		Date:        strings.TrimSpace(fields[1]),
		Symbol:      strings.TrimSpace(fields[2]),
		Open:        floats[0],
		High:        floats[1],
		Low:         floats[2],
		Close:       floats[3],
		VolumeBase:  floats[4],
		VolumeQuote: floats[5],
		TradeCount:  tradeCount,
	}, nil
}
