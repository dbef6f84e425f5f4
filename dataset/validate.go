package dataset

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/burn-engine/evm"
)

// Validator checks input records against their struct tags.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their column names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// A zero TimePoint is a missing date.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		tp, ok := field.Interface().(evm.TimePoint)
		if !ok || tp.IsZero() {
			return nil
		}
		return tp.String()
	}, evm.TimePoint{})

	// NaN and Inf parse as floats but break clipping and decimal output.
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})

	return &Validator{validate: v}
}

// Dataset validates every record of every stream and returns the first
// failure as an *evm.RecordError.
func (v *Validator) Dataset(ds *evm.Dataset) error {
	if err := validateAll(v, evm.TableSOV, ds.SOV); err != nil {
		return err
	}
	if err := validateAll(v, evm.TableLabor, ds.Labor); err != nil {
		return err
	}
	if err := validateAll(v, evm.TableMaterials, ds.Materials); err != nil {
		return err
	}
	if err := validateAll(v, evm.TablePeriods, ds.Periods); err != nil {
		return err
	}
	return validateAll(v, evm.TableLineItems, ds.LineItems)
}

func validateAll[T any](v *Validator, table string, records []T) error {
	for i := range records {
		if err := v.Record(table, i+1, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

// Record validates one record; row is its 1-based position in the table.
func (v *Validator) Record(table string, row int, rec any) error {
	err := v.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &evm.RecordError{
			Table: table,
			Row:   row,
			Field: fe.Field(),
			Err:   fmt.Errorf("failed %q check (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &evm.RecordError{Table: table, Row: row, Err: err}
}
