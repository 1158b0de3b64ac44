package pool_test

import (
	"fmt"

	"github.com/ajitpratap0/parquetry/pkg/pool"
)

// Example demonstrates borrowing a staging buffer from the global pool.
func Example() {
	buf := pool.GlobalBufferPool.Get(2048)
	defer pool.GlobalBufferPool.Put(buf)

	fmt.Println(len(buf), cap(buf))

	// Output:
	// 2048 4096
}

// ExampleNew shows a typed pool of scratch slices.
func ExampleNew() {
	scratch := pool.New(
		func() *[]byte {
			b := make([]byte, 0, 64)
			return &b
		},
		func(b *[]byte) { *b = (*b)[:0] },
	)

	b := scratch.Get()
	*b = append(*b, "page"...)
	fmt.Println(string(*b))
	scratch.Put(b)

	// Output:
	// page
}
