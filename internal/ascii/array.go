package ascii

import (
	"errors"
	"reflect"

	"github.com/danmuck/typechan/internal/channel"
	"github.com/danmuck/typechan/internal/protocol"
)

// ArrayOutput sends equal-length columns as table rows. An array is the
// whole stream: SendArray ends it with EOF.
type ArrayOutput struct {
	table *TableOutput
}

func NewArrayOutput(ch *channel.Channel, pattern string) (*ArrayOutput, error) {
	t, err := NewTableOutput(ch, pattern)
	if err != nil {
		return nil, err
	}
	return &ArrayOutput{table: t}, nil
}

// SendArray sends row j as (columns[0][j], columns[1][j], ...), then EOF.
func (o *ArrayOutput) SendArray(columns ...any) error {
	if err := o.table.format.Check(len(columns), "array"); err != nil {
		return err
	}
	rows := -1
	cols := make([]reflect.Value, len(columns))
	for i, c := range columns {
		rv := reflect.ValueOf(c)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return &protocol.TypeMismatchError{Field: i, Type: "column", Reason: "column must be a slice"}
		}
		if rows >= 0 && rv.Len() != rows {
			return &protocol.TypeMismatchError{Field: i, Type: "column", Reason: "columns differ in length"}
		}
		rows = rv.Len()
		cols[i] = rv
	}
	row := make([]any, len(cols))
	for j := 0; j < rows; j++ {
		for i, c := range cols {
			row[i] = c.Index(j).Interface()
		}
		if err := o.table.SendRow(row...); err != nil {
			return err
		}
	}
	return o.table.SendEOF()
}

func (o *ArrayOutput) Close() error { return o.table.Close() }

// ArrayInput collects rows until EOF into columns.
type ArrayInput struct {
	table *TableInput
}

func NewArrayInput(ch *channel.Channel, pattern string) (*ArrayInput, error) {
	t, err := NewTableInput(ch, pattern)
	if err != nil {
		return nil, err
	}
	return &ArrayInput{table: t}, nil
}

// RecvArray returns one typed slice per field. A stream with no rows
// yields nil columns.
func (i *ArrayInput) RecvArray() ([]any, error) {
	n := i.table.format.NumFields()
	cols := make([]reflect.Value, n)
	for {
		row, err := i.table.RecvRow()
		if errors.Is(err, protocol.ErrEOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for k, v := range row {
			rv := reflect.ValueOf(v)
			if !cols[k].IsValid() {
				cols[k] = reflect.MakeSlice(reflect.SliceOf(rv.Type()), 0, 8)
			}
			cols[k] = reflect.Append(cols[k], rv)
		}
	}
	out := make([]any, n)
	for k, c := range cols {
		if c.IsValid() {
			out[k] = c.Interface()
		}
	}
	return out, nil
}

func (i *ArrayInput) Close() error { return i.table.Close() }
