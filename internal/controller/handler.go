package controller

import (
	"net/http"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/service/gate"
)

type stateResponse struct {
	Session  domain.Session       `json:"session"`
	Snapshot *domain.RoomSnapshot `json:"snapshot"`
}

func (c controller) getState(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.session.Current()
	if !ok {
		c.writeError(w, r, gate.ErrNoSession)
		return
	}

	c.writeData(w, r, http.StatusOK, stateResponse{
		Session:  sess,
		Snapshot: c.poller.Snapshot(),
	})
}

func (c controller) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.session.Current()
	if !ok {
		c.writeError(w, r, gate.ErrNoSession)
		return
	}

	c.writeData(w, r, http.StatusOK, sess)
}

type createRoomInput struct {
	Nickname string `json:"nickname"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input createRoomInput
	if !c.readValid(w, r, &input) {
		return
	}

	sess, err := c.session.Create(r.Context(), input.Nickname)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusCreated, sess)
}

type joinRoomInput struct {
	RoomCode string `json:"room_code"`
	Nickname string `json:"nickname"`
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	var input joinRoomInput
	if !c.readValid(w, r, &input) {
		return
	}

	sess, err := c.session.Join(r.Context(), input.RoomCode, input.Nickname)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, sess)
}

func (c controller) leaveRoom(w http.ResponseWriter, r *http.Request) {
	c.session.Leave(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type draftBody struct {
	Text string `json:"text" validate:"max=1000"`
}

func (c controller) getDraft(w http.ResponseWriter, r *http.Request) {
	c.writeData(w, r, http.StatusOK, draftBody{Text: c.gate.Draft().Text()})
}

func (c controller) setDraft(w http.ResponseWriter, r *http.Request) {
	var input draftBody
	if !c.readValid(w, r, &input) {
		return
	}

	c.gate.Draft().Set(input.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (c controller) sendChat(w http.ResponseWriter, r *http.Request) {
	if err := c.gate.SendChat(r.Context()); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type playStateInput struct {
	IsPlaying   *bool   `json:"is_playing" validate:"required"`
	CurrentTime float64 `json:"current_time" validate:"gte=0"`
}

func (c controller) setPlayState(w http.ResponseWriter, r *http.Request) {
	var input playStateInput
	if !c.readValid(w, r, &input) {
		return
	}

	if err := c.gate.SetPlayState(r.Context(), *input.IsPlaying, input.CurrentTime); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type toggleResponse struct {
	IsPlaying bool `json:"is_playing"`
}

func (c controller) togglePlayState(w http.ResponseWriter, r *http.Request) {
	isPlaying, err := c.gate.TogglePlayState(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, toggleResponse{IsPlaying: isPlaying})
}

func (c controller) skipNext(w http.ResponseWriter, r *http.Request) {
	if err := c.gate.SkipNext(r.Context()); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) skipPrevious(w http.ResponseWriter, r *http.Request) {
	if err := c.gate.SkipPrevious(r.Context()); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type seekInput struct {
	At float64 `json:"at" validate:"gte=0"`
}

func (c controller) seek(w http.ResponseWriter, r *http.Request) {
	var input seekInput
	if !c.readValid(w, r, &input) {
		return
	}

	if err := c.gate.Seek(r.Context(), input.At); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type volumeBody struct {
	Volume *int  `json:"volume,omitempty" validate:"omitempty,gte=0,lte=100"`
	Muted  *bool `json:"muted,omitempty"`
}

func (c controller) getVolume(w http.ResponseWriter, r *http.Request) {
	volume, muted := c.player.Volume()
	c.writeData(w, r, http.StatusOK, volumeBody{Volume: &volume, Muted: &muted})
}

func (c controller) setVolume(w http.ResponseWriter, r *http.Request) {
	var input volumeBody
	if !c.readValid(w, r, &input) {
		return
	}

	if input.Volume != nil {
		if err := c.player.SetVolume(*input.Volume); err != nil {
			c.logger.DebugContext(r.Context(), "volume not applied", "error", err)
		}
	}
	if input.Muted != nil {
		if err := c.player.SetMuted(*input.Muted); err != nil {
			c.logger.DebugContext(r.Context(), "mute not applied", "error", err)
		}
	}

	c.getVolume(w, r)
}

type addToQueueInput struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title" validate:"max=200"`
	Thumbnail string `json:"thumbnail" validate:"omitempty,url"`
}

func (c controller) addToQueue(w http.ResponseWriter, r *http.Request) {
	var input addToQueueInput
	if !c.readValid(w, r, &input) {
		return
	}

	video, err := c.gate.AddToQueue(r.Context(), domain.Video{
		VideoID:   input.VideoID,
		Title:     input.Title,
		Thumbnail: input.Thumbnail,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusCreated, video)
}

func (c controller) getMembers(w http.ResponseWriter, r *http.Request) {
	users, err := c.gate.Members(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, users)
}
