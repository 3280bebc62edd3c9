package featureadmin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/sqlite-facevec/outlier"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the registered virtual table module name.
const ModuleName = "feature_outliers"

// DefaultThreshold applies when a query has no threshold constraint.
const DefaultThreshold = 1.0

const (
	idxNone = iota
	idxIdentity
	idxIdentityThreshold
)

const (
	colIdentity = iota
	colSourceLabel
	colReference
	colDistance
	colRecordID
	colThreshold
)

// Module builds feature_outliers tables backed by the currently bound
// outlier.Detector. The driver keeps one module instance per process; the
// detector is resolved per query.
type Module struct {
	mu        sync.RWMutex
	detector  *outlier.Detector
	threshold float64
}

// Option configures a binding.
type Option func(*binding)

type binding struct {
	threshold float64
}

// WithDefaultThreshold sets the threshold used when a query omits one.
func WithDefaultThreshold(threshold float64) Option {
	return func(b *binding) { b.threshold = threshold }
}

// Table is one feature_outliers virtual table.
type Table struct {
	module *Module
}

// Cursor iterates the outliers of one identity.
type Cursor struct {
	table *Table
	rows  []row
	pos   int
}

type row struct {
	identity  string
	label     string
	reference outlier.Reference
	distance  float64
	recordID  int64
	threshold float64
}

var (
	module      = &Module{threshold: DefaultThreshold}
	installOnce sync.Once
	installErr  error
)

// Install registers the feature_outliers module with the driver. Only
// connections opened after Install see the module, so call it before the
// first connection of the database is opened.
func Install() error {
	installOnce.Do(func() {
		if err := vtab.RegisterModule(nil, ModuleName, module); err != nil && !strings.Contains(err.Error(), "already registered") {
			installErr = err
		}
	})
	return installErr
}

// Bind routes feature_outliers queries to detector. A later Bind replaces
// the previous detector and default threshold.
func Bind(detector *outlier.Detector, opts ...Option) error {
	if detector == nil {
		return fmt.Errorf("featureadmin: detector is nil")
	}
	b := &binding{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(b)
	}
	module.mu.Lock()
	module.detector = detector
	module.threshold = b.threshold
	module.mu.Unlock()
	return nil
}

// Register installs the module and binds detector. db must not have opened
// any connection yet, otherwise those pooled connections miss the module.
func Register(db *sql.DB, detector *outlier.Detector, opts ...Option) error {
	_ = db
	if detector == nil {
		return fmt.Errorf("featureadmin: detector is nil")
	}
	if err := Install(); err != nil {
		return err
	}
	return Bind(detector, opts...)
}

func (m *Module) bound() (*outlier.Detector, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.detector == nil {
		return nil, 0, fmt.Errorf("featureadmin: no detector bound")
	}
	return m.detector, m.threshold, nil
}

// Create declares the table schema.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect declares the table schema for an existing table.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *Module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("featureadmin: need at least 3 args")
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("featureadmin: EnableConstraintSupport failed: %w", err)
	}
	schema := fmt.Sprintf("CREATE TABLE %s(identity_id TEXT, source_label TEXT, reference TEXT, distance REAL, record_id INTEGER, threshold REAL HIDDEN)", args[2])
	if err := ctx.Declare(schema); err != nil {
		return nil, err
	}
	return &Table{module: m}, nil
}

// BestIndex requires MATCH on identity_id and optionally consumes an
// equality on threshold.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var identity, threshold *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == colIdentity && c.Op == vtab.OpMATCH:
			identity = c
		case c.Column == colThreshold && c.Op == vtab.OpEQ:
			threshold = c
		}
	}
	if identity == nil {
		return fmt.Errorf("featureadmin: identity_id MATCH is required")
	}
	identity.ArgIndex = 0
	identity.Omit = true
	info.IdxNum = idxIdentity
	if threshold != nil {
		threshold.ArgIndex = 1
		threshold.Omit = true
		info.IdxNum = idxIdentityThreshold
	}
	return nil
}

// Open allocates a cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect releases nothing.
func (t *Table) Disconnect() error { return nil }

// Destroy releases nothing; records live in feature_records.
func (t *Table) Destroy() error { return nil }

// Filter runs outlier detection for the matched identity.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	_ = idxStr
	c.rows = nil
	c.pos = 0
	if idxNum == idxNone || len(vals) == 0 {
		return fmt.Errorf("featureadmin: identity_id MATCH argument is required")
	}
	identity, err := asString(vals[0])
	if err != nil {
		return err
	}
	detector, threshold, err := c.table.module.bound()
	if err != nil {
		return err
	}
	if idxNum == idxIdentityThreshold && len(vals) > 1 {
		if threshold, err = asFloat(vals[1]); err != nil {
			return err
		}
	}
	report, err := detector.FindOutliers(context.Background(), identity, threshold)
	if err != nil {
		return err
	}
	for _, ref := range []outlier.Reference{outlier.ReferenceMean, outlier.ReferenceMedian} {
		for _, o := range report.Outliers(ref) {
			c.rows = append(c.rows, row{
				identity:  identity,
				label:     o.Record.SourceLabel,
				reference: ref,
				distance:  o.Distance,
				recordID:  o.Record.ID,
				threshold: threshold,
			})
		}
	}
	return nil
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of col in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("featureadmin: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	r := c.rows[c.pos]
	switch col {
	case colIdentity:
		return r.identity, nil
	case colSourceLabel:
		return r.label, nil
	case colReference:
		return string(r.reference), nil
	case colDistance:
		return r.distance, nil
	case colRecordID:
		return r.recordID, nil
	case colThreshold:
		return r.threshold, nil
	}
	return nil, fmt.Errorf("featureadmin: unsupported column %d", col)
}

// Rowid returns the 1-based row position.
func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

// Close releases the rows.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

func asString(v vtab.Value) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case nil:
		return "", fmt.Errorf("featureadmin: identity_id is nil")
	default:
		return "", fmt.Errorf("featureadmin: unsupported identity_id type %T", v)
	}
}

func asFloat(v vtab.Value) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("featureadmin: unsupported threshold type %T", v)
	}
}
