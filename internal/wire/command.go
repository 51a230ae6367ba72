package wire

// Command is the 4-byte tag that opens every request record.
type Command uint32

const (
	CmdGetShmHandle Command = iota + 1
	CmdSystemCompositorGetInfo
	CmdSessionCreate
	CmdSessionBegin
	CmdSessionEnd
	CmdSessionDestroy
	CmdSessionSuggestInteractionProfile
	CmdCompositorGetInfo
	CmdCompositorPredictFrame
	CmdCompositorWaitWoke
	CmdCompositorBeginFrame
	CmdCompositorDiscardFrame
	CmdCompositorLayerSync
	CmdCompositorLayerSyncWithSemaphore
	CmdCompositorPollEvents
	CmdSwapchainGetProperties
	CmdSwapchainCreate
	CmdSwapchainImport
	CmdSwapchainWaitImage
	CmdSwapchainAcquireImage
	CmdSwapchainReleaseImage
	CmdSwapchainDestroy
	CmdCompositorSemaphoreCreate
	CmdCompositorSemaphoreDestroy
	CmdDeviceUpdateInput
	CmdDeviceGetTrackedPose
	CmdDeviceGetHandTracking
	CmdDeviceGetViewPoses
	CmdDeviceSetOutput
	CmdSystemGetClientInfo
	CmdSystemSetClientInfo
	CmdSystemGetClients
	CmdSystemSetPrimaryClient
	CmdSystemSetFocusedClient
	CmdSystemToggleIOClient
	CmdSystemToggleIODevice
)

var commandNames = map[Command]string{
	CmdGetShmHandle:                     "get_shm_handle",
	CmdSystemCompositorGetInfo:          "system_compositor_get_info",
	CmdSessionCreate:                    "session_create",
	CmdSessionBegin:                     "session_begin",
	CmdSessionEnd:                       "session_end",
	CmdSessionDestroy:                   "session_destroy",
	CmdSessionSuggestInteractionProfile: "session_suggest_interaction_profile",
	CmdCompositorGetInfo:                "compositor_get_info",
	CmdCompositorPredictFrame:           "compositor_predict_frame",
	CmdCompositorWaitWoke:               "compositor_wait_woke",
	CmdCompositorBeginFrame:             "compositor_begin_frame",
	CmdCompositorDiscardFrame:           "compositor_discard_frame",
	CmdCompositorLayerSync:              "compositor_layer_sync",
	CmdCompositorLayerSyncWithSemaphore: "compositor_layer_sync_with_semaphore",
	CmdCompositorPollEvents:             "compositor_poll_events",
	CmdSwapchainGetProperties:           "swapchain_get_properties",
	CmdSwapchainCreate:                  "swapchain_create",
	CmdSwapchainImport:                  "swapchain_import",
	CmdSwapchainWaitImage:               "swapchain_wait_image",
	CmdSwapchainAcquireImage:            "swapchain_acquire_image",
	CmdSwapchainReleaseImage:            "swapchain_release_image",
	CmdSwapchainDestroy:                 "swapchain_destroy",
	CmdCompositorSemaphoreCreate:        "compositor_semaphore_create",
	CmdCompositorSemaphoreDestroy:       "compositor_semaphore_destroy",
	CmdDeviceUpdateInput:                "device_update_input",
	CmdDeviceGetTrackedPose:             "device_get_tracked_pose",
	CmdDeviceGetHandTracking:            "device_get_hand_tracking",
	CmdDeviceGetViewPoses:               "device_get_view_poses",
	CmdDeviceSetOutput:                  "device_set_output",
	CmdSystemGetClientInfo:              "system_get_client_info",
	CmdSystemSetClientInfo:              "system_set_client_info",
	CmdSystemGetClients:                 "system_get_clients",
	CmdSystemSetPrimaryClient:           "system_set_primary_client",
	CmdSystemSetFocusedClient:           "system_set_focused_client",
	CmdSystemToggleIOClient:             "system_toggle_io_client",
	CmdSystemToggleIODevice:             "system_toggle_io_device",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown_command"
}

// Known reports whether c is a recognized command tag.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}
