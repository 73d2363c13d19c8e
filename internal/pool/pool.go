// Package pool provides object pooling to reduce allocations on
// HelixDB's hot paths: response-body encoding in the gateway and
// terminal collection in the traversal pipeline.
//
// Generalized from the teacher's pkg/pool/pool.go, trimmed to the
// shapes this repository actually allocates — no tabular "query rows"
// or named-node pool, since traversal results are typed TraversalVal
// values, not generic row slices.
package pool

import "sync"

// Config configures pooling behavior.
type Config struct {
	Enabled bool
	MaxSize int
}

var globalConfig = Config{Enabled: true, MaxSize: 1000}

// Configure sets global pool configuration. Call early during startup.
func Configure(cfg Config) {
	globalConfig = cfg
}

// IsEnabled reports whether pooling is active.
func IsEnabled() bool { return globalConfig.Enabled }

var byteBufferPool = sync.Pool{
	New: func() any { return make([]byte, 0, 1024) },
}

// GetByteBuffer returns a zero-length byte buffer, used by the gateway
// to build response bodies without allocating per request.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns buf to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled || cap(buf) > 1024*1024 {
		return
	}
	byteBufferPool.Put(buf[:0])
}

var valueSlicePool = sync.Pool{
	New: func() any { return make([]any, 0, 16) },
}

// GetValueSlice returns a zero-length []any, used by the traversal
// pipeline's collect_to_obj terminal step to assemble native values
// before marshaling a response.
func GetValueSlice() []any {
	if !globalConfig.Enabled {
		return make([]any, 0, 16)
	}
	return valueSlicePool.Get().([]any)[:0]
}

// PutValueSlice returns s to the pool.
func PutValueSlice(s []any) {
	if !globalConfig.Enabled || cap(s) > globalConfig.MaxSize {
		return
	}
	for i := range s {
		s[i] = nil
	}
	valueSlicePool.Put(s[:0])
}
