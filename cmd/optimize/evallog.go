package main

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// evalRow is one optimize_log.csv row. Parameter columns follow
// NewParamVector order.
type evalRow struct {
	Eval                int     `csv:"eval"`
	Fitness             float64 `csv:"fitness"`
	BestEver            float64 `csv:"best_ever"`
	MutationRate        float64 `csv:"mutation_rate"`
	NoProgressTimeoutMs float64 `csv:"no_progress_timeout_ms"`
	HiddenWidth         float64 `csv:"hidden_width"`
	ElapsedSec          float64 `csv:"elapsed_sec"`
}

func newEvalRow(eval int, fitness, bestEver float64, params []float64, elapsedSec float64) evalRow {
	return evalRow{
		Eval:                eval,
		Fitness:             fitness,
		BestEver:            bestEver,
		MutationRate:        params[0],
		NoProgressTimeoutMs: params[1],
		HiddenWidth:         params[2],
		ElapsedSec:          elapsedSec,
	}
}

// evalLog appends evaluation rows to a CSV file, header first.
type evalLog struct {
	f             *os.File
	headerWritten bool
}

func createEvalLog(path string) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating evaluation log: %w", err)
	}
	return &evalLog{f: f}, nil
}

func (l *evalLog) Write(row evalRow) error {
	rows := []evalRow{row}
	var err error
	if l.headerWritten {
		err = gocsv.MarshalWithoutHeaders(rows, l.f)
	} else {
		err = gocsv.Marshal(rows, l.f)
		l.headerWritten = err == nil
	}
	if err != nil {
		return fmt.Errorf("writing evaluation %d: %w", row.Eval, err)
	}
	return nil
}

func (l *evalLog) Close() error {
	return l.f.Close()
}
