package dispatch

import (
	"github.com/openxrd/openxrd/internal/session"
	"github.com/openxrd/openxrd/internal/wire"
)

// Handler answers one request on behalf of clientIndex's session. It
// returns the reply payload, any native handles to carry out of band,
// and the status to put in the reply header.
type Handler func(s *Server, sess *session.Session, clientIndex int, req []byte) (reply []byte, handles []int, status wire.Status)

// table maps each command tag to its handler.
var table = map[wire.Command]Handler{
	wire.CmdGetShmHandle:                     handleGetShmHandle,
	wire.CmdSystemCompositorGetInfo:          handleSystemCompositorGetInfo,
	wire.CmdSessionCreate:                    handleSessionCreate,
	wire.CmdSessionBegin:                     handleSessionBegin,
	wire.CmdSessionEnd:                       handleSessionEnd,
	wire.CmdSessionDestroy:                   handleSessionDestroy,
	wire.CmdSessionSuggestInteractionProfile: handleSessionSuggestInteractionProfile,
	wire.CmdCompositorGetInfo:                handleCompositorGetInfo,
	wire.CmdCompositorPredictFrame:           handleCompositorPredictFrame,
	wire.CmdCompositorWaitWoke:               handleCompositorWaitWoke,
	wire.CmdCompositorBeginFrame:             handleCompositorBeginFrame,
	wire.CmdCompositorDiscardFrame:           handleCompositorDiscardFrame,
	wire.CmdCompositorLayerSync:              handleCompositorLayerSync,
	wire.CmdCompositorLayerSyncWithSemaphore: handleCompositorLayerSyncWithSemaphore,
	wire.CmdCompositorPollEvents:             handleCompositorPollEvents,
	wire.CmdSwapchainGetProperties:           handleSwapchainGetProperties,
	wire.CmdSwapchainCreate:                  handleSwapchainCreate,
	wire.CmdSwapchainImport:                  handleSwapchainImport,
	wire.CmdSwapchainWaitImage:               handleSwapchainWaitImage,
	wire.CmdSwapchainAcquireImage:            handleSwapchainAcquireImage,
	wire.CmdSwapchainReleaseImage:            handleSwapchainReleaseImage,
	wire.CmdSwapchainDestroy:                 handleSwapchainDestroy,
	wire.CmdCompositorSemaphoreCreate:        handleCompositorSemaphoreCreate,
	wire.CmdCompositorSemaphoreDestroy:       handleCompositorSemaphoreDestroy,
	wire.CmdDeviceUpdateInput:                handleDeviceUpdateInput,
	wire.CmdDeviceGetTrackedPose:             handleDeviceGetTrackedPose,
	wire.CmdDeviceGetHandTracking:            handleDeviceGetHandTracking,
	wire.CmdDeviceGetViewPoses:               handleDeviceGetViewPoses,
	wire.CmdDeviceSetOutput:                  handleDeviceSetOutput,
	wire.CmdSystemGetClientInfo:              handleSystemGetClientInfo,
	wire.CmdSystemSetClientInfo:              handleSystemSetClientInfo,
	wire.CmdSystemGetClients:                 handleSystemGetClients,
	wire.CmdSystemSetPrimaryClient:           handleSystemSetPrimaryClient,
	wire.CmdSystemSetFocusedClient:           handleSystemSetFocusedClient,
	wire.CmdSystemToggleIOClient:             handleSystemToggleIOClient,
	wire.CmdSystemToggleIODevice:             handleSystemToggleIODevice,
}
