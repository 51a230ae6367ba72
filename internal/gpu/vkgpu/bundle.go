// Package vkgpu implements internal/gpu.Bundle over real Vulkan, using
// github.com/goki/vulkan: instance/device/queue setup, swapchain image
// and memory allocation, and one-shot command-buffer submission, with
// exportable timeline semaphores and importable fences.
package vkgpu

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/openxrd/openxrd/internal/gpu"
)

// Bundle is the Vulkan-backed graphics bundle. One Bundle owns one
// Vulkan instance, physical device, logical device and queue; it is
// shared by every client session's swapchains.
type Bundle struct {
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32
	commandPool    vk.CommandPool

	// mu guards the handle maps, sampler setup, and the command pool;
	// client listener threads allocate and destroy concurrently, and
	// Vulkan requires external synchronization on the pool and queue.
	mu           sync.Mutex
	views        map[vk.Image][2]vk.ImageView
	memories     map[vk.Image]vk.DeviceMemory
	samplers     [2]vk.Sampler
	samplersMade bool

	semaphores map[gpu.SemaphoreHandle]vk.Semaphore
	fences     map[gpu.FenceHandle]vk.Fence
	nextHandle uint64
}

// New creates a Vulkan instance, selects a GPU with a graphics queue,
// and opens a logical device with timeline semaphores enabled.
func New() (*Bundle, error) {
	b := &Bundle{
		views:      make(map[vk.Image][2]vk.ImageView),
		memories:   make(map[vk.Image]vk.DeviceMemory),
		semaphores: make(map[gpu.SemaphoreHandle]vk.Semaphore),
		fences:     make(map[gpu.FenceHandle]vk.Fence),
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vkgpu: vk.Init: %w", err)
	}
	if err := b.createInstance(); err != nil {
		return nil, err
	}
	if err := b.selectPhysicalDevice(); err != nil {
		vk.DestroyInstance(b.instance, nil)
		return nil, err
	}
	if err := b.createDevice(); err != nil {
		vk.DestroyInstance(b.instance, nil)
		return nil, err
	}
	if err := b.createCommandPool(); err != nil {
		vk.DestroyDevice(b.device, nil)
		vk.DestroyInstance(b.instance, nil)
		return nil, err
	}
	return b, nil
}

func (b *Bundle) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "openxrd runtime\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "openxrd\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 2, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkgpu: vkCreateInstance failed: %d", res)
	}
	b.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (b *Bundle) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(b.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("vkgpu: no Vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(b.instance, &count, devices)

	for _, dev := range devices {
		var qfCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, nil)
		families := make([]vk.QueueFamilyProperties, qfCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				b.physicalDevice = dev
				b.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("vkgpu: no GPU with a graphics queue found")
}

func (b *Bundle) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: b.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	timelineFeature := vk.PhysicalDeviceTimelineSemaphoreFeatures{
		SType:             vk.StructureTypePhysicalDeviceTimelineSemaphoreFeatures,
		TimelineSemaphore: vk.True,
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		PNext:                unsafePointer(&timelineFeature),
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(b.physicalDevice, &deviceInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkgpu: vkCreateDevice failed: %d", res)
	}
	b.device = device
	var queue vk.Queue
	vk.GetDeviceQueue(device, b.queueFamily, 0, &queue)
	b.queue = queue
	return nil
}

func (b *Bundle) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(b.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("vkgpu: vkCreateCommandPool failed: %d", res)
	}
	b.commandPool = pool
	return nil
}

func (b *Bundle) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(b.physicalDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && memProps.MemoryTypes[i].PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("vkgpu: no suitable memory type for bits=%#x props=%#x", typeBits, props)
}

// ensureSamplers lazily creates the shared repeat/clamp sampler pair.
// Callers must hold b.mu.
func (b *Bundle) ensureSamplers() error {
	if b.samplersMade {
		return nil
	}
	for i, mode := range []vk.SamplerAddressMode{vk.SamplerAddressModeRepeat, vk.SamplerAddressModeClampToEdge} {
		info := vk.SamplerCreateInfo{
			SType:        vk.StructureTypeSamplerCreateInfo,
			MagFilter:    vk.FilterLinear,
			MinFilter:    vk.FilterLinear,
			AddressModeU: mode,
			AddressModeV: mode,
			AddressModeW: mode,
		}
		var sampler vk.Sampler
		if res := vk.CreateSampler(b.device, &info, nil, &sampler); res != vk.Success {
			return fmt.Errorf("vkgpu: vkCreateSampler failed: %d", res)
		}
		b.samplers[i] = sampler
	}
	b.samplersMade = true
	return nil
}

func (b *Bundle) AllocateImages(info gpu.ImageCreateInfo, count int) ([]gpu.Image, [2]gpu.SamplerHandle, error) {
	if info.Width == 0 || info.Height == 0 {
		return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrFormatUnsupported, Msg: "vkgpu: zero-sized image requested"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureSamplers(); err != nil {
		return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrGPU, Msg: err.Error()}
	}

	images := make([]gpu.Image, 0, count)
	for i := 0; i < count; i++ {
		imgInfo := vk.ImageCreateInfo{
			SType:     vk.StructureTypeImageCreateInfo,
			ImageType: vk.ImageType2d,
			Format:    vk.FormatR8g8b8a8Unorm,
			Extent: vk.Extent3D{
				Width:  info.Width,
				Height: info.Height,
				Depth:  1,
			},
			MipLevels:     1,
			ArrayLayers:   maxu32(1, info.ArrayLayers),
			Samples:       vk.SampleCount1Bit,
			Tiling:        vk.ImageTilingOptimal,
			Usage:         vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit),
			InitialLayout: vk.ImageLayoutUndefined,
			SharingMode:   vk.SharingModeExclusive,
		}
		var image vk.Image
		if res := vk.CreateImage(b.device, &imgInfo, nil, &image); res != vk.Success {
			return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrGPU, Msg: fmt.Sprintf("vkCreateImage failed: %d", res)}
		}

		var memReqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(b.device, image, &memReqs)
		memReqs.Deref()
		memType, err := b.findMemoryType(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if err != nil {
			vk.DestroyImage(b.device, image, nil)
			return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrGPU, Msg: err.Error()}
		}
		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  memReqs.Size,
			MemoryTypeIndex: memType,
		}
		var mem vk.DeviceMemory
		if res := vk.AllocateMemory(b.device, &allocInfo, nil, &mem); res != vk.Success {
			vk.DestroyImage(b.device, image, nil)
			return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrGPU, Msg: fmt.Sprintf("vkAllocateMemory failed: %d", res)}
		}
		vk.BindImageMemory(b.device, image, mem, 0)
		b.memories[image] = mem

		colorView, err := b.createView(image, info.ArrayLayers)
		if err != nil {
			return nil, [2]gpu.SamplerHandle{}, err
		}
		straightView, err := b.createView(image, info.ArrayLayers)
		if err != nil {
			return nil, [2]gpu.SamplerHandle{}, err
		}
		b.views[image] = [2]vk.ImageView{colorView, straightView}

		images = append(images, gpu.Image{
			Native:       gpu.NativeHandle(image),
			ColorView:    gpu.ViewHandle(colorView),
			StraightView: gpu.ViewHandle(straightView),
			Dedicated:    info.Protected,
			Size:         memReqs.Size,
		})
	}

	return images, [2]gpu.SamplerHandle{gpu.SamplerHandle(b.samplers[0]), gpu.SamplerHandle(b.samplers[1])}, nil
}

func (b *Bundle) createView(image vk.Image, layers uint32) (vk.ImageView, *gpu.BundleError) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     maxu32(1, layers),
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(b.device, &viewInfo, nil, &view); res != vk.Success {
		return 0, &gpu.BundleError{Class: gpu.ErrGPU, Msg: fmt.Sprintf("vkCreateImageView failed: %d", res)}
	}
	return view, nil
}

// ImportImages wraps client-supplied native handles (already exported
// via platform DMA-BUF/NT-handle mechanisms at the transport layer)
// with the same view/sampler setup AllocateImages builds for its own
// images. The actual cross-process import of the vk.Image backing
// store happens at the wire layer (VkImportMemoryFdInfoKHR /
// VkImportMemoryWin32HandleInfoKHR); here the handles are assumed
// already resolved to local vk.Image values by that layer.
func (b *Bundle) ImportImages(info gpu.ImageCreateInfo, natives []gpu.NativeHandle) ([]gpu.Image, [2]gpu.SamplerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureSamplers(); err != nil {
		return nil, [2]gpu.SamplerHandle{}, &gpu.BundleError{Class: gpu.ErrGPU, Msg: err.Error()}
	}
	images := make([]gpu.Image, 0, len(natives))
	for _, native := range natives {
		image := vk.Image(native)
		colorView, err := b.createView(image, info.ArrayLayers)
		if err != nil {
			return nil, [2]gpu.SamplerHandle{}, err
		}
		straightView, err := b.createView(image, info.ArrayLayers)
		if err != nil {
			return nil, [2]gpu.SamplerHandle{}, err
		}
		b.views[image] = [2]vk.ImageView{colorView, straightView}
		images = append(images, gpu.Image{
			Native:       native,
			ColorView:    gpu.ViewHandle(colorView),
			StraightView: gpu.ViewHandle(straightView),
		})
	}
	return images, [2]gpu.SamplerHandle{gpu.SamplerHandle(b.samplers[0]), gpu.SamplerHandle(b.samplers[1])}, nil
}

// TransitionToShaderReadOnly records and submits a one-shot command
// buffer that barriers every image to VK_IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
// then waits for it to finish.
func (b *Bundle) TransitionToShaderReadOnly(images []gpu.Image) error {
	if len(images) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBufs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(b.device, &allocInfo, cmdBufs); res != vk.Success {
		return fmt.Errorf("vkgpu: vkAllocateCommandBuffers failed: %d", res)
	}
	cmd := cmdBufs[0]
	defer vk.FreeCommandBuffers(b.device, b.commandPool, 1, cmdBufs)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return fmt.Errorf("vkgpu: vkBeginCommandBuffer failed: %d", res)
	}

	for _, img := range images {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           vk.ImageLayoutUndefined,
			NewLayout:           vk.ImageLayoutShaderReadOnlyOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               vk.Image(img.Native),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		}
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	}

	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("vkgpu: vkEndCommandBuffer failed: %d", res)
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(b.device, &fenceInfo, nil, &fence); res != vk.Success {
		return fmt.Errorf("vkgpu: vkCreateFence failed: %d", res)
	}
	defer vk.DestroyFence(b.device, fence, nil)

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmdBufs,
	}
	if res := vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{submit}, fence); res != vk.Success {
		return fmt.Errorf("vkgpu: vkQueueSubmit failed: %d", res)
	}
	if res := vk.WaitForFences(b.device, 1, []vk.Fence{fence}, vk.True, ^uint64(0)); res != vk.Success {
		return fmt.Errorf("vkgpu: vkWaitForFences failed: %d", res)
	}
	return nil
}

func (b *Bundle) DestroyImages(images []gpu.Image, samplers [2]gpu.SamplerHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, img := range images {
		image := vk.Image(img.Native)
		if views, ok := b.views[image]; ok {
			vk.DestroyImageView(b.device, views[0], nil)
			vk.DestroyImageView(b.device, views[1], nil)
			delete(b.views, image)
		}
		if mem, ok := b.memories[image]; ok {
			vk.FreeMemory(b.device, mem, nil)
			delete(b.memories, image)
		}
		vk.DestroyImage(b.device, image, nil)
	}
	return nil
}

func (b *Bundle) CreateSemaphore() (gpu.SemaphoreHandle, gpu.NativeHandle, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  0,
	}
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafePointer(&typeInfo),
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(b.device, &info, nil, &sem); res != vk.Success {
		return 0, 0, fmt.Errorf("vkgpu: vkCreateSemaphore failed: %d", res)
	}
	b.mu.Lock()
	b.nextHandle++
	h := gpu.SemaphoreHandle(b.nextHandle)
	b.semaphores[h] = sem
	b.mu.Unlock()
	return h, gpu.NativeHandle(sem), nil
}

func (b *Bundle) ImportFence(native gpu.NativeHandle) (gpu.FenceHandle, error) {
	b.mu.Lock()
	b.nextHandle++
	h := gpu.FenceHandle(b.nextHandle)
	b.fences[h] = vk.Fence(native)
	b.mu.Unlock()
	return h, nil
}

func (b *Bundle) WaitSemaphore(sem gpu.SemaphoreHandle, value uint64, timeout time.Duration) error {
	b.mu.Lock()
	vkSem, ok := b.semaphores[sem]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("vkgpu: unknown semaphore %d", sem)
	}
	waitInfo := vk.SemaphoreWaitInfo{
		SType:          vk.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    []vk.Semaphore{vkSem},
		PValues:        []uint64{value},
	}
	res := vk.WaitSemaphores(b.device, &waitInfo, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return gpu.ErrTimeout
	}
	if res != vk.Success {
		return fmt.Errorf("vkgpu: vkWaitSemaphores failed: %d", res)
	}
	return nil
}

func (b *Bundle) WaitFence(fence gpu.FenceHandle, timeout time.Duration) error {
	b.mu.Lock()
	vkFence, ok := b.fences[fence]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("vkgpu: unknown fence %d", fence)
	}
	res := vk.WaitForFences(b.device, 1, []vk.Fence{vkFence}, vk.True, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return gpu.ErrTimeout
	}
	if res != vk.Success {
		return fmt.Errorf("vkgpu: vkWaitForFences failed: %d", res)
	}
	return nil
}

func (b *Bundle) DestroySemaphore(sem gpu.SemaphoreHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vkSem, ok := b.semaphores[sem]; ok {
		vk.DestroySemaphore(b.device, vkSem, nil)
		delete(b.semaphores, sem)
	}
	return nil
}

func (b *Bundle) DestroyFence(fence gpu.FenceHandle) error {
	b.mu.Lock()
	delete(b.fences, fence)
	b.mu.Unlock()
	return nil
}

func (b *Bundle) DeviceWaitIdle() error {
	if res := vk.DeviceWaitIdle(b.device); res != vk.Success {
		return fmt.Errorf("vkgpu: vkDeviceWaitIdle failed: %d", res)
	}
	return nil
}

// Close tears down every remaining Vulkan object, then the logical
// device and instance.
func (b *Bundle) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sem := range b.semaphores {
		vk.DestroySemaphore(b.device, sem, nil)
	}
	for _, views := range b.views {
		vk.DestroyImageView(b.device, views[0], nil)
		vk.DestroyImageView(b.device, views[1], nil)
	}
	for _, mem := range b.memories {
		vk.FreeMemory(b.device, mem, nil)
	}
	if b.samplersMade {
		vk.DestroySampler(b.device, b.samplers[0], nil)
		vk.DestroySampler(b.device, b.samplers[1], nil)
	}
	vk.DestroyCommandPool(b.device, b.commandPool, nil)
	vk.DestroyDevice(b.device, nil)
	vk.DestroyInstance(b.instance, nil)
	return nil
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

var _ gpu.Bundle = (*Bundle)(nil)
