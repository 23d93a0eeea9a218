package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
)

var ledgerHeader = []string{
	"cycle",
	"irradiance",
	"temperature",
	"load",
	"v_mpp",
	"i_mpp",
	"p_mpp",
	"v",
	"i",
	"p",
	"v_ref",
	"pulse_width",
	"direction",
	"p_diff",
	"p_diff_a",
	"tracking_eff",
}

func WriteLedgerCSV(path string, ledger []LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(ledgerHeader); err != nil {
		return err
	}
	for _, r := range ledger {
		if err := w.Write(ledgerRecord(r)); err != nil {
			return err
		}
	}

	return w.Error()
}

// CSVSink streams ledger rows to w as the run progresses. The header is
// written before the first row.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	header bool
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) Record(r LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.header {
		if err := s.w.Write(ledgerHeader); err != nil {
			return err
		}
		s.header = true
	}
	if err := s.w.Write(ledgerRecord(r)); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func ledgerRecord(r LedgerRow) []string {
	return []string{
		strconv.Itoa(r.Cycle),
		fmtFloat(r.Irradiance),
		fmtFloat(r.Temperature),
		fmtFloat(r.Load),
		fmtFloat(r.VMPP),
		fmtFloat(r.IMPP),
		fmtFloat(r.PMPP),
		fmtFloat(r.V),
		fmtFloat(r.I),
		fmtFloat(r.P),
		fmtFloat(r.VRef),
		fmtFloat(r.PulseWidth),
		string(r.Direction),
		fmtFloat(r.PDiff),
		fmtFloat(r.PDiffA),
		fmtFloat(r.Efficiency),
	}
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
