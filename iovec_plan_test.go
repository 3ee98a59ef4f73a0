package tcpendpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/tcpendpoint/buffer"
)

func newTestBuffer(chunks ...string) *buffer.Buffer {
	b := buffer.New()
	for _, c := range chunks {
		b.AppendCopy([]byte(c))
	}
	return b
}

func TestIoVecPlanBuildConsumesWholeSlices(t *testing.T) {
	b := newTestBuffer("abc", "de", "fghi")
	p := NewIoVecPlan(b, 0, 0)

	iov := p.Build(0)
	require.Len(t, iov, 3)
	assert.Equal(t, 9, p.Planned())
	assert.True(t, p.AllSlicesSent())
}

func TestIoVecPlanBuildRespectsMaxIovs(t *testing.T) {
	b := newTestBuffer("a", "b", "c", "d")
	p := NewIoVecPlan(b, 0, 0)

	iov := p.Build(2)
	assert.Len(t, iov, 2)
	assert.False(t, p.AllSlicesSent())
	assert.Equal(t, 2, p.SliceIdx())
}

func TestIoVecPlanRestoreToPreCall(t *testing.T) {
	b := newTestBuffer("abc", "def")
	p := NewIoVecPlan(b, 0, 0)
	p.Build(1)
	assert.Equal(t, 1, p.SliceIdx())

	p.RestoreToPreCall()
	assert.Equal(t, 0, p.SliceIdx())
	assert.Equal(t, 0, p.ByteIdx())
}

func TestIoVecPlanUpdateOffsetForBytesSentPartial(t *testing.T) {
	b := newTestBuffer("abcde", "fghij")
	p := NewIoVecPlan(b, 0, 0)
	p.Build(2)
	require.Equal(t, 10, p.Planned())

	p.UpdateOffsetForBytesSent(10, 7)
	assert.Equal(t, 7, p.AbsoluteOffset())
	assert.Equal(t, 1, p.SliceIdx())
	assert.Equal(t, 2, p.ByteIdx())
}

func TestIoVecPlanUpdateOffsetForBytesSentFull(t *testing.T) {
	b := newTestBuffer("abcde", "fghij")
	p := NewIoVecPlan(b, 0, 0)
	p.Build(2)

	p.UpdateOffsetForBytesSent(10, 10)
	assert.Equal(t, 10, p.AbsoluteOffset())
	assert.True(t, p.AllSlicesSent())
}

func TestSetMaxWriteIovecOnlyShrinks(t *testing.T) {
	orig := MaxWriteIovec
	defer func() { MaxWriteIovec = orig }()

	SetMaxWriteIovec(16)
	assert.Equal(t, 16, MaxWriteIovec)

	SetMaxWriteIovec(1024)
	assert.Equal(t, 16, MaxWriteIovec) // larger limit never grows it back
}
