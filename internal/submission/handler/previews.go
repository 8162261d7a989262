package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kycreview/internal/preview"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/httputil"
	"kycreview/pkg/requestcontext"
)

// HandleOpenSession handles POST /previews/sessions.
func (h *Handler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := h.previews.NewSession(requestcontext.ActorID(ctx))
	h.logger.InfoContext(ctx, "preview session opened",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

// HandleCloseSession handles DELETE /previews/sessions/{sessionID}. Closing
// releases every staged handle; closing twice is fine.
func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r, true)
	if ok && session != nil {
		session.ReleaseAll()
	}
	if ok {
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleStage handles PUT /previews/sessions/{sessionID}/slots/{slot}. The
// body is the raw file; the X-File-Name header carries its name.
func (h *Handler) HandleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.session(w, r, false)
	if !ok {
		return
	}
	f, err := h.readStagedFile(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid staged file", err)
		return
	}
	handle, err := session.Stage(ctx, chi.URLParam(r, "slot"), f)
	if err != nil {
		h.fail(ctx, w, "staging failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHandleResponse(handle))
}

// HandleUnstage handles DELETE /previews/sessions/{sessionID}/slots/{slot}.
func (h *Handler) HandleUnstage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r, false)
	if !ok {
		return
	}
	session.Remove(chi.URLParam(r, "slot"))
	w.WriteHeader(http.StatusNoContent)
}

// HandlePreview handles GET /previews/{handleID}. Revoked handles are gone.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}
	servePreview(w, handle.File.MediaType, handle.File.Name, handle.File.Data)
}

// HandleThumbnail handles GET /previews/{handleID}/thumbnail.
func (h *Handler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}
	if len(handle.Thumbnail) == 0 {
		h.fail(r.Context(), w, "no thumbnail", dErrors.New(dErrors.CodeNotFound, "no thumbnail for this file"))
		return
	}
	servePreview(w, "image/png", "thumbnail.png", handle.Thumbnail)
}

func servePreview(w http.ResponseWriter, mediaType, name string, data []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// session loads the caller's session. With allowMissing a closed or unknown
// session yields (nil, true).
func (h *Handler) session(w http.ResponseWriter, r *http.Request, allowMissing bool) (*preview.Session, bool) {
	ctx := r.Context()
	session, found := h.previews.Session(chi.URLParam(r, "sessionID"))
	if !found {
		if allowMissing {
			return nil, true
		}
		h.fail(ctx, w, "unknown preview session", dErrors.New(dErrors.CodeNotFound, "preview session not found"))
		return nil, false
	}
	if session.Owner != requestcontext.ActorID(ctx) {
		h.fail(ctx, w, "foreign preview session", dErrors.New(dErrors.CodeNotFound, "preview session not found"))
		return nil, false
	}
	return session, true
}

// handle loads a live handle staged by the caller.
func (h *Handler) handle(w http.ResponseWriter, r *http.Request) (*preview.Handle, bool) {
	ctx := r.Context()
	notFound := dErrors.New(dErrors.CodeNotFound, "preview not found")
	handle, found := h.previews.Lookup(chi.URLParam(r, "handleID"))
	if !found {
		h.fail(ctx, w, "unknown preview handle", notFound)
		return nil, false
	}
	session, found := h.previews.Session(handle.SessionID)
	if !found || session.Owner != requestcontext.ActorID(ctx) {
		h.fail(ctx, w, "foreign preview handle", notFound)
		return nil, false
	}
	return handle, true
}

func (h *Handler) readStagedFile(w http.ResponseWriter, r *http.Request) (preview.File, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return preview.File{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit))
		}
		return preview.File{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable body")
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/octet-stream" {
		mediaType = ""
	}
	name := r.Header.Get("X-File-Name")
	if name == "" {
		name = chi.URLParam(r, "slot")
	}
	return preview.File{Name: name, MediaType: mediaType, Data: data}, nil
}

func toSessionResponse(s *preview.Session) SessionResponse {
	staged := s.Staged()
	out := SessionResponse{SessionID: s.ID, Staged: make([]HandleResponse, 0, len(staged))}
	for _, h := range staged {
		out.Staged = append(out.Staged, toHandleResponse(h))
	}
	return out
}

func toHandleResponse(h *preview.Handle) HandleResponse {
	resp := HandleResponse{
		HandleID:   h.ID,
		Slot:       h.Slot,
		FileName:   h.File.Name,
		MediaType:  h.File.MediaType,
		Size:       h.File.Size(),
		PreviewURL: "/previews/" + h.ID,
		CreatedAt:  h.CreatedAt,
	}
	if len(h.Thumbnail) > 0 {
		resp.ThumbnailURL = "/previews/" + h.ID + "/thumbnail"
	}
	return resp
}
