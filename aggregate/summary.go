package aggregate

// Failure is one photo that was not stored.
type Failure struct {
	Label string
	Err   error
}

// Summary reports the outcome of one IngestIdentity call.
type Summary struct {
	IdentityID string
	// Processed counts the photos handed in.
	Processed int
	// Stored counts the sample records written.
	Stored   int
	Failed   int
	Failures []Failure
	// MeanID and MedianID are the aggregate record ids, zero when none were written.
	MeanID   int64
	MedianID int64
	// Err is set when the identity as a whole produced no aggregates although
	// photos were supplied; it wraps vector.ErrEmptyInput.
	Err error
}

// Aggregated reports whether mean and median records were written.
func (s *Summary) Aggregated() bool { return s.MeanID != 0 && s.MedianID != 0 }

func (s *Summary) fail(label string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{Label: label, Err: err})
}

// Totals folds summaries of a multi-identity run.
type Totals struct {
	Identities int
	Processed  int
	Stored     int
	Failed     int
	Aggregated int
}

// Add folds s into t.
func (t *Totals) Add(s *Summary) {
	if s == nil {
		return
	}
	t.Identities++
	t.Processed += s.Processed
	t.Stored += s.Stored
	t.Failed += s.Failed
	if s.Aggregated() {
		t.Aggregated++
	}
}
