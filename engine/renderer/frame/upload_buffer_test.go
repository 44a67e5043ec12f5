package frame

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx/fake"
	"github.com/spaghettifunk/luminax/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantBufferStrideIsAligned(t *testing.T) {
	dev := fake.NewDevice()

	objects, err := NewUploadBuffer[ObjectConstants](dev, 3, true)
	require.NoError(t, err)
	defer objects.Release()
	assert.Equal(t, uint64(256), objects.Stride())
	assert.Equal(t, uint64(768), objects.Resource().Desc().Width)

	pass, err := NewUploadBuffer[PassConstants](dev, 1, true)
	require.NoError(t, err)
	defer pass.Release()
	assert.Zero(t, pass.Stride()%256)
	assert.GreaterOrEqual(t, pass.Stride(), uint64(1216))

	for i := 0; i < objects.Len(); i++ {
		addr := objects.ElementAddress(i)
		assert.Zero(t, addr%256, "element %d", i)
		assert.Equal(t, uint32(256), objects.ViewDesc(i).SizeInBytes)
	}
}

func TestPlainBufferIsTightlyPacked(t *testing.T) {
	dev := fake.NewDevice()

	b, err := NewUploadBuffer[math.Vec3](dev, 4, false)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, uint64(12), b.Stride())
	assert.Equal(t, uint64(48), b.Resource().Desc().Width)
	assert.False(t, b.IsConstantBuffer())
}

func TestCopyDataRoundTrip(t *testing.T) {
	dev := fake.NewDevice()
	b, err := NewUploadBuffer[ObjectConstants](dev, 2, true)
	require.NoError(t, err)
	defer b.Release()

	oc := NewObjectConstants()
	oc.World = math.NewMat4Translation(math.NewVec3(1, 2, 3))
	b.CopyData(1, oc)

	assert.Equal(t, oc, b.Element(1))
	assert.Equal(t, ObjectConstants{}, b.Element(0))

	// Element 1 starts at the second 256 byte block; World[12] is the x translation.
	raw := b.Resource().(*fake.Resource).Bytes()
	bits := binary.LittleEndian.Uint32(raw[256+12*4:])
	assert.Equal(t, float32(1), gomath.Float32frombits(bits))
}

func TestUploadBufferRejectsBadArguments(t *testing.T) {
	dev := fake.NewDevice()

	_, err := NewUploadBuffer[ObjectConstants](dev, 0, true)
	assert.Error(t, err)

	_, err = NewUploadBuffer[*ObjectConstants](dev, 1, true)
	assert.Error(t, err)

	_, err = NewUploadBuffer[[]float32](dev, 1, false)
	assert.Error(t, err)

	assert.Zero(t, dev.LiveResources())
}

func TestUploadBufferAllocationFailure(t *testing.T) {
	dev := fake.NewDevice()
	dev.FailNext("CreateCommittedResource", fake.ErrInjected)

	_, err := NewUploadBuffer[ObjectConstants](dev, 1, true)
	require.Error(t, err)
	var de *core.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "CreateCommittedResource", de.Call)
	assert.True(t, errors.Is(err, fake.ErrInjected))
}

func TestUploadBufferMapFailureReleasesResource(t *testing.T) {
	dev := fake.NewDevice()
	dev.FailNext("Map", fake.ErrInjected)

	_, err := NewUploadBuffer[MaterialConstants](dev, 1, true)
	require.Error(t, err)
	var de *core.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Map", de.Call)
	assert.Zero(t, dev.LiveResources())
}

func TestReleaseUnmaps(t *testing.T) {
	dev := fake.NewDevice()
	b, err := NewUploadBuffer[MaterialConstants](dev, 1, true)
	require.NoError(t, err)
	res := b.Resource().(*fake.Resource)

	b.Release()
	b.Release()
	assert.False(t, res.Mapped())
	assert.True(t, res.Released())
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.LiveResources())
}
