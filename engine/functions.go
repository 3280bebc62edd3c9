package engine

import (
	"database/sql/driver"
	"fmt"
	"sync"

	sqlite "modernc.org/sqlite"

	"github.com/viant/sqlite-facevec/vector"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterVectorFunctions registers feature_l2 and feature_dim with the
// driver so they are available on new connections opened after this call.
// Note: existing open connections will not see new functions.
//
//	SELECT id, feature_l2(vector, ?) FROM feature_records WHERE identity_id = ?
func RegisterVectorFunctions() error {
	registerOnce.Do(func() {
		if registerErr = sqlite.RegisterDeterministicScalarFunction("feature_l2", 2, featureL2Impl); registerErr != nil {
			return
		}
		registerErr = sqlite.RegisterDeterministicScalarFunction("feature_dim", 1, featureDimImpl)
	})
	return registerErr
}

func asVector(arg driver.Value) ([]float64, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return vector.DecodeVector(v)
	default:
		return nil, fmt.Errorf("feature: unsupported argument type %T for vector; want BLOB", arg)
	}
}

func featureL2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("feature_l2: expected 2 arguments, got %d", len(args))
	}
	a, err := asVector(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asVector(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	return vector.L2Distance(a, b)
}

func featureDimImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("feature_dim: expected 1 argument, got %d", len(args))
	}
	v, err := asVector(args[0])
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return int64(len(v)), nil
}
