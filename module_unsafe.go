package modmix

import (
	"unsafe"

	"github.com/quasilyte/modmix/modfile"
)

func moduleSize(m *modfile.Module) uint {
	memoryUsage := int(unsafe.Sizeof(*m))
	for _, s := range m.Samples {
		memoryUsage += len(s.Data)
	}
	for _, p := range m.Patterns {
		memoryUsage += int(unsafe.Sizeof(p))
		memoryUsage += modfile.NumDivisions * m.NumChannels * int(unsafe.Sizeof(modfile.Note{}))
	}

	// Device resources: the atlas, packed patterns (CPU and device sides)
	// and the channel state arena.
	const texelBytes = texelSize * int(unsafe.Sizeof(float32(0)))
	memoryUsage += AtlasSlots * AtlasSlotSize * texelBytes
	memoryUsage += (len(m.Patterns) + 1) * m.NumChannels * 2 * modfile.NumDivisions * texelBytes
	memoryUsage += 2 * StateWidth * m.NumChannels * texelBytes

	return uint(memoryUsage)
}
