package flowstore

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestMapDataAndMapError(t *testing.T) {
	itoa := func(v int) string { return strconv.Itoa(v) }
	if r := MapData(Data(7), itoa); !r.IsData() || r.Data != "7" {
		t.Fatalf("data: %+v", r)
	}
	if r := MapData(Loading[int](), itoa); !r.IsLoading() {
		t.Fatalf("loading: %+v", r)
	}
	boom := errors.New("boom")
	if r := MapData(Error[int](boom), itoa); !r.IsError() || r.Err != boom {
		t.Fatalf("error: %+v", r)
	}

	wrapped := MapError(Error[int](boom), func(err error) error { return errors.Join(errors.New("ctx"), err) })
	if !errors.Is(wrapped.Err, boom) {
		t.Fatalf("wrapped: %v", wrapped.Err)
	}
	if r := MapError(Data(1), func(error) error { return boom }); !r.IsData() {
		t.Fatalf("MapError must leave data alone: %+v", r)
	}
}

func TestDataOrElseAndUnwrap(t *testing.T) {
	if DataOrElse(Data(3), 9) != 3 || DataOrElse(Loading[int](), 9) != 9 || DataOrElse(Error[int](errors.New("x")), 9) != 9 {
		t.Fatal("DataOrElse")
	}
	if v, err := Unwrap(Data(3)); err != nil || v != 3 {
		t.Fatalf("Unwrap data: %v %v", v, err)
	}
	if _, err := Unwrap(Loading[int]()); !errors.Is(err, ErrLoading) {
		t.Fatalf("Unwrap loading: %v", err)
	}
	boom := errors.New("boom")
	if _, err := Unwrap(Error[int](boom)); err != boom {
		t.Fatalf("Unwrap error: %v", err)
	}
}

func TestFilterNotLoadingAndFirstOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := feed(Loading[int](), Data(1), Loading[int](), Data(2))
	close(in)

	out := FilterNotLoading(ctx, in)
	expectData(t, out, 1)
	expectData(t, out, 2)
	if _, ok := <-out; ok {
		t.Fatal("output must close")
	}

	v, err := FirstOutcome(ctx, feed(Loading[int](), Data(5)))
	if err != nil || v != 5 {
		t.Fatalf("FirstOutcome: %v %v", v, err)
	}

	closed := feed(Loading[int]())
	close(closed)
	if _, err := FirstOutcome(ctx, closed); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("closed stream: %v", err)
	}

	short, stop := context.WithTimeout(ctx, 10*time.Millisecond)
	defer stop()
	if _, err := FirstOutcome(short, feed[int]()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("deadline: %v", err)
	}
}

func TestMapStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := feed(Data(2))
	close(in)
	out := MapStream(ctx, in, func(r Response[int]) Response[int] {
		return MapData(r, func(v int) int { return v * 10 })
	})
	expectData(t, out, 20)
}

func TestRequestString(t *testing.T) {
	cases := map[string]Request{
		"fresh":                   Fresh(),
		"cached":                  Cached(false),
		"cached(force)":           Cached(true),
		"cached(older_than=1m0s)": CachedIfOlderThan(time.Minute),
	}
	for want, r := range cases {
		if got := r.String(); got != want {
			t.Fatalf("String()=%q want %q", got, want)
		}
	}
	var zero Request
	if zero != Cached(false) {
		t.Fatal("zero Request must be Cached(false)")
	}
}
