package task

import "context"

// ResultTask runs a throwing block inline and finishes with its return value
// or its error.
type ResultTask[T any] struct {
	*Base[T]
	block func() (T, error)
}

func NewResult[T any](block func() (T, error), opts ...Option) *ResultTask[T] {
	return &ResultTask[T]{
		Base:  NewBase[T]("result", opts...),
		block: block,
	}
}

// NewBlock is NewResult for work without an output value.
func NewBlock(block func() error, opts ...Option) *ResultTask[Void] {
	var fn func() (Void, error)
	if block != nil {
		fn = func() (Void, error) { return Void{}, block() }
	}
	return NewResult(fn, opts...)
}

func (t *ResultTask[T]) Execute(context.Context) {
	if !t.Begin() {
		return
	}
	var res Result[T]
	defer func() { t.FinishWithResult(res) }()
	defer func() {
		if r := recover(); r != nil {
			res = Failure[T](t.panicError(r))
		}
	}()

	if t.block == nil {
		res = Failure[T](ErrNilBlock)
		return
	}
	v, err := t.block()
	res = ResultOf(v, err)
}

// AsyncResultTask hands a finishing callback to its block and finishes when
// the block (or something it started) calls it. Execute returns immediately
// after the block returns.
type AsyncResultTask[T any] struct {
	*Base[T]
	block func(ctx context.Context, finish func(Result[T]))
}

func NewAsyncResult[T any](block func(ctx context.Context, finish func(Result[T])), opts ...Option) *AsyncResultTask[T] {
	return &AsyncResultTask[T]{
		Base:  NewBase[T]("async_result", opts...),
		block: block,
	}
}

// NewAsyncBlock is NewAsyncResult for work without an output value. The block
// reports completion with finish(err).
func NewAsyncBlock(block func(ctx context.Context, finish func(error)), opts ...Option) *AsyncResultTask[Void] {
	var fn func(context.Context, func(Result[Void]))
	if block != nil {
		fn = func(ctx context.Context, finish func(Result[Void])) {
			block(ctx, func(err error) { finish(ResultOf(Void{}, err)) })
		}
	}
	return NewAsyncResult(fn, opts...)
}

func (t *AsyncResultTask[T]) Execute(ctx context.Context) {
	if !t.Begin() {
		return
	}
	if t.block == nil {
		t.FinishWithResult(Failure[T](ErrNilBlock))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.FinishWithResult(Failure[T](t.panicError(r)))
		}
	}()
	t.block(ctx, func(r Result[T]) { t.FinishWithResult(r) })
}

// CancellableResultTask runs its block inline, handing it a poll function that
// reports the task's own cancellation flag.
type CancellableResultTask[T any] struct {
	*Base[T]
	block func(isCancelled func() bool) (T, error)
}

func NewCancellableResult[T any](block func(isCancelled func() bool) (T, error), opts ...Option) *CancellableResultTask[T] {
	return &CancellableResultTask[T]{
		Base:  NewBase[T]("cancellable_result", opts...),
		block: block,
	}
}

// NewCancellableBlock is NewCancellableResult for work without an output value.
func NewCancellableBlock(block func(isCancelled func() bool) error, opts ...Option) *CancellableResultTask[Void] {
	var fn func(func() bool) (Void, error)
	if block != nil {
		fn = func(isCancelled func() bool) (Void, error) { return Void{}, block(isCancelled) }
	}
	return NewCancellableResult(fn, opts...)
}

func (t *CancellableResultTask[T]) Execute(context.Context) {
	if !t.Begin() {
		return
	}
	var res Result[T]
	defer func() { t.FinishWithResult(res) }()
	defer func() {
		if r := recover(); r != nil {
			res = Failure[T](t.panicError(r))
		}
	}()

	if t.block == nil {
		res = Failure[T](ErrNilBlock)
		return
	}
	v, err := t.block(t.IsCancelled)
	res = ResultOf(v, err)
}
