package vkgpu

import "unsafe"

// unsafePointer adapts a typed pNext chain struct to the
// unsafe.Pointer PNext fields the Vulkan bindings expect.
func unsafePointer[T any](v *T) unsafe.Pointer {
	return unsafe.Pointer(v)
}
