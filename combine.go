package flowstore

import "context"

// ErrorPolicy decides what an errored input contributes to a combination.
// Returning (v, true) degrades the error to data v; (_, false) propagates it.
type ErrorPolicy[T any] func(index int, err error) (T, bool)

// FirstErrorWins propagates the first errored input, in input order.
func FirstErrorWins[T any]() ErrorPolicy[T] {
	return func(int, error) (T, bool) {
		var zero T
		return zero, false
	}
}

// DefaultOnError replaces any errored input with def.
func DefaultOnError[T any](def T) ErrorPolicy[T] {
	return func(int, error) (T, bool) { return def, true }
}

type indexed[T any] struct {
	i int
	r Response[T]
}

// Combine derives one stream from inputs, re-evaluated whenever any input
// emits. The result is Error when an input errors and policy does not
// degrade it (first error in input order wins), else Loading while any input
// is Loading or has not emitted, else Data(fn(values)). Consecutive Loading
// emissions are collapsed. A nil policy is FirstErrorWins.
//
// The output closes when ctx is done or every input has closed.
func Combine[T, R any](ctx context.Context, inputs []<-chan Response[T], policy ErrorPolicy[T], fn func([]T) R) <-chan Response[R] {
	if policy == nil {
		policy = FirstErrorWins[T]()
	}
	out := make(chan Response[R])
	merged := make(chan indexed[T])
	done := make(chan struct{}, len(inputs))

	for i, in := range inputs {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case r, ok := <-in:
					if !ok {
						return
					}
					select {
					case merged <- indexed[T]{i: i, r: r}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(out)
		latest := make([]Response[T], len(inputs))
		seen := make([]bool, len(inputs))
		open := len(inputs)
		var last State

		for open > 0 {
			select {
			case <-ctx.Done():
				return
			case <-done:
				open--
				continue
			case m := <-merged:
				latest[m.i], seen[m.i] = m.r, true
			}

			next := evaluate(latest, seen, policy, fn)
			if next.IsLoading() && last == StateLoading {
				continue
			}
			last = next.State
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func evaluate[T, R any](latest []Response[T], seen []bool, policy ErrorPolicy[T], fn func([]T) R) Response[R] {
	values := make([]T, len(latest))
	loading := false
	for i, r := range latest {
		switch {
		case !seen[i] || r.IsLoading():
			loading = true
		case r.IsError():
			v, ok := policy(i, r.Err)
			if !ok {
				return Error[R](r.Err)
			}
			values[i] = v
		default:
			values[i] = r.Data
		}
	}
	if loading {
		return Loading[R]()
	}
	return Data(fn(values))
}

// Combine2 is Combine over two inputs of different types. Nil policies are FirstErrorWins.
func Combine2[A, B, R any](ctx context.Context, a <-chan Response[A], b <-chan Response[B], onErrA ErrorPolicy[A], onErrB ErrorPolicy[B], fn func(A, B) R) <-chan Response[R] {
	if onErrA == nil {
		onErrA = FirstErrorWins[A]()
	}
	if onErrB == nil {
		onErrB = FirstErrorWins[B]()
	}
	policy := func(i int, err error) (any, bool) {
		if i == 0 {
			return onErrA(i, err)
		}
		return onErrB(i, err)
	}
	inputs := []<-chan Response[any]{box(ctx, a), box(ctx, b)}
	return Combine(ctx, inputs, policy, func(vs []any) R {
		av, _ := vs[0].(A)
		bv, _ := vs[1].(B)
		return fn(av, bv)
	})
}

func box[T any](ctx context.Context, in <-chan Response[T]) <-chan Response[any] {
	return MapStream(ctx, in, func(r Response[T]) Response[any] {
		return MapData(r, func(v T) any { return v })
	})
}
