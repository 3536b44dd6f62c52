package flowstore

import (
	"context"
	"errors"
)

type State uint8

const (
	StateLoading State = iota + 1
	StateData
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateData:
		return "data"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Response is one emission of a stream.
type Response[T any] struct {
	State State
	Data  T     // StateData only
	Err   error // StateError only
}

func Loading[T any]() Response[T]        { return Response[T]{State: StateLoading} }
func Data[T any](v T) Response[T]        { return Response[T]{State: StateData, Data: v} }
func Error[T any](err error) Response[T] { return Response[T]{State: StateError, Err: err} }
func (r Response[T]) IsLoading() bool    { return r.State == StateLoading }
func (r Response[T]) IsData() bool       { return r.State == StateData }
func (r Response[T]) IsError() bool      { return r.State == StateError }

// MapData transforms the data of r; Loading and Error pass through.
func MapData[T, R any](r Response[T], fn func(T) R) Response[R] {
	switch r.State {
	case StateData:
		return Data(fn(r.Data))
	case StateError:
		return Error[R](r.Err)
	default:
		return Loading[R]()
	}
}

// MapError transforms the error of r.
func MapError[T any](r Response[T], fn func(error) error) Response[T] {
	if r.State == StateError {
		return Error[T](fn(r.Err))
	}
	return r
}

// DataOrElse returns the data of r, or def when r carries none.
func DataOrElse[T any](r Response[T], def T) T {
	if r.State == StateData {
		return r.Data
	}
	return def
}

// ErrLoading is returned by Unwrap for a Loading response.
var ErrLoading = errors.New("flowstore: response still loading")

// Unwrap returns the data or the error of r.
func Unwrap[T any](r Response[T]) (T, error) {
	switch r.State {
	case StateData:
		return r.Data, nil
	case StateError:
		var zero T
		return zero, r.Err
	default:
		var zero T
		return zero, ErrLoading
	}
}

// MapStream applies fn to every response of in. The output closes when in
// closes or ctx is done.
func MapStream[T, R any](ctx context.Context, in <-chan Response[T], fn func(Response[T]) Response[R]) <-chan Response[R] {
	out := make(chan Response[R])
	go func() {
		defer close(out)
		for r := range in {
			select {
			case out <- fn(r):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FilterNotLoading drops Loading responses from in.
func FilterNotLoading[T any](ctx context.Context, in <-chan Response[T]) <-chan Response[T] {
	out := make(chan Response[T])
	go func() {
		defer close(out)
		for r := range in {
			if r.IsLoading() {
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FirstOutcome waits for the first Data or Error of in.
func FirstOutcome[T any](ctx context.Context, in <-chan Response[T]) (T, error) {
	var zero T
	for {
		select {
		case r, ok := <-in:
			if !ok {
				if err := ctx.Err(); err != nil {
					return zero, err
				}
				return zero, ErrStreamClosed
			}
			if r.IsLoading() {
				continue
			}
			return Unwrap(r)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
