package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/vod"
	"github.com/jihoonkim/legisub/internal/worker"
)

// WorkerManager is the subset of *worker.Manager the introspection handler
// needs, named here so tests can supply a stub.
type WorkerManager interface {
	IsRunning(channelID string) bool
	DebugInfo(channelID string) (worker.DebugInfo, bool)
}

// IntrospectionHandler exposes thin read-only endpoints over the channel
// catalog, running workers, and VOD task state (SPEC_FULL.md's "HTTP/WS/SSE
// Transport" domain-stack entry).
type IntrospectionHandler struct {
	catalog *catalog.Catalog
	workers WorkerManager
	vod     *vod.Tracker
}

// NewIntrospectionHandler constructs an IntrospectionHandler.
func NewIntrospectionHandler(cat *catalog.Catalog, workers WorkerManager, tracker *vod.Tracker) *IntrospectionHandler {
	return &IntrospectionHandler{catalog: cat, workers: workers, vod: tracker}
}

// Register registers the introspection routes with the API.
func (h *IntrospectionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/api/v1/channels",
		Summary:     "List the channel catalog",
		Tags:        []string{"Channels"},
	}, h.ListChannels)

	huma.Register(api, huma.Operation{
		OperationID: "getWorkerDebugInfo",
		Method:      "GET",
		Path:        "/api/v1/channels/{channelID}/worker",
		Summary:     "Get a channel's Live Caption Worker debug info",
		Tags:        []string{"Channels"},
	}, h.GetWorkerDebugInfo)

	huma.Register(api, huma.Operation{
		OperationID: "getVODTaskStatus",
		Method:      "GET",
		Path:        "/api/v1/vod/tasks/{meetingID}",
		Summary:     "Get a VOD caption task's status",
		Tags:        []string{"VOD"},
	}, h.GetVODTaskStatus)

	huma.Register(api, huma.Operation{
		OperationID:   "startVODTask",
		Method:        "POST",
		Path:          "/api/v1/vod/tasks",
		Summary:       "Start a VOD caption task for a finished meeting's recording",
		Tags:          []string{"VOD"},
		DefaultStatus: 202,
	}, h.StartVODTask)
}

// ChannelOutput is one row of the channel catalog response.
type ChannelOutput struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	UpstreamCode string `json:"upstream_code"`
	PlaylistURL  string `json:"playlist_url"`
}

// ListChannelsInput has no parameters.
type ListChannelsInput struct{}

// ListChannelsOutput wraps the catalog rows.
type ListChannelsOutput struct {
	Body struct {
		Channels []ChannelOutput `json:"channels"`
	}
}

// ListChannels returns every channel in the static catalog.
func (h *IntrospectionHandler) ListChannels(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	rows := h.catalog.List()
	out := &ListChannelsOutput{}
	out.Body.Channels = make([]ChannelOutput, 0, len(rows))
	for _, ch := range rows {
		out.Body.Channels = append(out.Body.Channels, ChannelOutput{
			ID:           ch.ID,
			DisplayName:  ch.DisplayName,
			UpstreamCode: ch.UpstreamCode,
			PlaylistURL:  ch.PlaylistURL,
		})
	}
	return out, nil
}

// GetWorkerDebugInfoInput identifies the channel to inspect.
type GetWorkerDebugInfoInput struct {
	ChannelID string `path:"channelID"`
}

// GetWorkerDebugInfoOutput mirrors worker.DebugInfo as wire JSON.
type GetWorkerDebugInfoOutput struct {
	Body struct {
		Running                 bool    `json:"running"`
		LastProviderActivityAgo float64 `json:"last_provider_activity_ago_seconds"`
		CaptionsEmitted         int     `json:"captions_emitted"`
		BufferPreview           string  `json:"buffer_preview"`
		LastError               string  `json:"last_error,omitempty"`
		ReconnectCount          int     `json:"reconnect_count"`
	}
}

// GetWorkerDebugInfo returns the Live Caption Worker's introspection
// snapshot for one channel, or 404 if no worker is tracked for it.
func (h *IntrospectionHandler) GetWorkerDebugInfo(ctx context.Context, input *GetWorkerDebugInfoInput) (*GetWorkerDebugInfoOutput, error) {
	if _, ok := h.catalog.ByID(input.ChannelID); !ok {
		return nil, huma.Error404NotFound("unknown channel id: " + input.ChannelID)
	}

	info, ok := h.workers.DebugInfo(input.ChannelID)
	if !ok {
		return nil, huma.Error404NotFound("no worker tracked for channel: " + input.ChannelID)
	}

	out := &GetWorkerDebugInfoOutput{}
	out.Body.Running = info.TaskAlive
	out.Body.LastProviderActivityAgo = info.LastProviderActivityAgo.Seconds()
	out.Body.CaptionsEmitted = info.CaptionsEmitted
	out.Body.BufferPreview = info.BufferPreview
	out.Body.LastError = info.LastError
	out.Body.ReconnectCount = info.ReconnectCount
	return out, nil
}

// GetVODTaskStatusInput identifies the meeting to inspect.
type GetVODTaskStatusInput struct {
	MeetingID string `path:"meetingID"`
}

// GetVODTaskStatusOutput mirrors models.TaskState as wire JSON.
type GetVODTaskStatusOutput struct {
	Body struct {
		TaskID    string  `json:"task_id"`
		MeetingID string  `json:"meeting_id"`
		Status    string  `json:"status"`
		Progress  float64 `json:"progress"`
		Message   string  `json:"message,omitempty"`
		Error     string  `json:"error,omitempty"`
	}
}

// GetVODTaskStatus returns the current state of meetingID's VOD caption
// task, or 404 if no task has been started for it in this process.
func (h *IntrospectionHandler) GetVODTaskStatus(ctx context.Context, input *GetVODTaskStatusInput) (*GetVODTaskStatusOutput, error) {
	state, ok := h.vod.Status(input.MeetingID)
	if !ok {
		return nil, huma.Error404NotFound("no VOD task tracked for meeting: " + input.MeetingID)
	}

	out := &GetVODTaskStatusOutput{}
	out.Body.TaskID = state.TaskID
	out.Body.MeetingID = state.MeetingID
	out.Body.Status = string(state.Status)
	out.Body.Progress = state.Progress
	out.Body.Message = state.Message
	out.Body.Error = state.Error
	return out, nil
}

// StartVODTaskInput is the body for kicking off a VOD caption task.
type StartVODTaskInput struct {
	Body struct {
		MeetingID string `json:"meeting_id" required:"true"`
		MP4URL    string `json:"mp4_url" required:"true"`
	}
}

// StartVODTaskOutput reports the freshly minted task id.
type StartVODTaskOutput struct {
	Body struct {
		TaskID    string `json:"task_id"`
		MeetingID string `json:"meeting_id"`
	}
}

// StartVODTask starts the VOD Batch Worker pipeline for one meeting's
// recording. Returns 409 if a task for this meeting is already running
// (spec.md §4.9 step 1, §7 "User-level 4xx surfaces").
func (h *IntrospectionHandler) StartVODTask(ctx context.Context, input *StartVODTaskInput) (*StartVODTaskOutput, error) {
	taskID, err := h.vod.Start(ctx, input.Body.MeetingID, input.Body.MP4URL)
	if err != nil {
		if errors.Is(err, vod.ErrTaskAlreadyRunning) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("starting VOD task", err)
	}

	out := &StartVODTaskOutput{}
	out.Body.TaskID = taskID
	out.Body.MeetingID = input.Body.MeetingID
	return out, nil
}
