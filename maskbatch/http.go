package maskbatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/maskcodec"
	"github.com/lewtec/maskbatch/internal/maskops"
	"github.com/lewtec/maskbatch/internal/session"
	"github.com/lewtec/maskbatch/internal/status"
)

// Handler builds the JSON API. Handlers stay thin: decode, call the core,
// encode. The canvas UI talks exclusively through these endpoints.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/images", a.handleRegisterImage)
	mux.HandleFunc("GET /api/images", a.handleListImages)
	mux.HandleFunc("GET /api/images/next", a.handleNextImage)
	mux.HandleFunc("DELETE /api/images/{hash}", a.handleDeleteImage)

	mux.HandleFunc("GET /api/export", a.handleExport)
	mux.HandleFunc("GET /api/export/stats", a.handleExportStats)

	mux.HandleFunc("POST /api/sessions/{sid}/load", a.handleSessionLoad)
	mux.HandleFunc("GET /api/sessions/{sid}", a.handleSessionSnapshot)
	mux.HandleFunc("DELETE /api/sessions/{sid}", a.handleSessionClose)
	mux.HandleFunc("POST /api/sessions/{sid}/creation", a.handleCreation)
	mux.HandleFunc("POST /api/sessions/{sid}/creation/commit", a.handleCommit)
	mux.HandleFunc("POST /api/sessions/{sid}/layers", a.handleAddLayer)
	mux.HandleFunc("PATCH /api/sessions/{sid}/layers/{layer}", a.handlePatchLayer)
	mux.HandleFunc("DELETE /api/sessions/{sid}/layers/{layer}", a.handleDeleteLayer)
	mux.HandleFunc("POST /api/sessions/{sid}/edit", a.handleEnterEdit)
	mux.HandleFunc("POST /api/sessions/{sid}/edit/apply", a.handleApplyEdit)
	mux.HandleFunc("POST /api/sessions/{sid}/edit/undo", a.handleUndo)
	mux.HandleFunc("POST /api/sessions/{sid}/edit/redo", a.handleRedo)
	mux.HandleFunc("POST /api/sessions/{sid}/edit/save", a.handleSaveEdit)
	mux.HandleFunc("POST /api/sessions/{sid}/edit/discard", a.handleDiscardEdit)
	mux.HandleFunc("POST /api/sessions/{sid}/status", a.handleStatusAction)

	return a.requestLogger(mux)
}

func (a *App) handleRegisterImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageHash string `json:"image_hash"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	if req.ImageHash == "" || req.Width <= 0 || req.Height <= 0 {
		a.writeError(w, http.StatusBadRequest, errors.New("image_hash, width and height are required"))
		return
	}
	img := &domain.Image{ImageHash: req.ImageHash, Width: req.Width, Height: req.Height}
	if err := a.Images.Upsert(r.Context(), img); err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]string{"image_hash": req.ImageHash})
}

func (a *App) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := a.Images.List(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	out := make([]apiImage, 0, len(images))
	for _, img := range images {
		out = append(out, toAPIImage(img))
	}
	a.writeJSON(w, http.StatusOK, out)
}

// handleNextImage drives "next image" navigation: the first image after
// the given one, by registration order, whose status matches the filter.
func (a *App) handleNextImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var statuses []domain.ImageStatus
	for _, s := range q["status"] {
		st := domain.ImageStatus(s)
		if !st.Valid() {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown image status %q", s))
			return
		}
		statuses = append(statuses, st)
	}
	if len(statuses) == 0 {
		statuses = []domain.ImageStatus{domain.ImageUnprocessed, domain.ImageInProgress}
	}
	img, err := a.Images.NextByStatuses(r.Context(), statuses, q.Get("after"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toAPIImage(img))
}

func (a *App) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := a.Images.Delete(r.Context(), r.PathValue("hash")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleExport(w http.ResponseWriter, r *http.Request) {
	imageStatuses, layerStatuses, err := a.exportFilters(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := a.Export.PrepareExport(r.Context(), imageStatuses, layerStatuses)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, doc)
}

func (a *App) handleExportStats(w http.ResponseWriter, r *http.Request) {
	imageStatuses, layerStatuses, err := a.exportFilters(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := a.Export.Stats(r.Context(), imageStatuses, layerStatuses)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

// exportFilters reads filter query parameters, falling back to the
// configured defaults when absent.
func (a *App) exportFilters(r *http.Request) ([]domain.ImageStatus, []domain.LayerStatus, error) {
	q := r.URL.Query()
	imageStatuses := a.Config.ExportImageStatuses()
	if raw, ok := q["image_status"]; ok {
		imageStatuses = imageStatuses[:0]
		for _, s := range raw {
			st := domain.ImageStatus(s)
			if !st.Valid() {
				return nil, nil, fmt.Errorf("unknown image status %q", s)
			}
			imageStatuses = append(imageStatuses, st)
		}
	}
	layerStatuses := a.Config.ExportLayerStatuses()
	if raw, ok := q["layer_status"]; ok {
		layerStatuses = layerStatuses[:0]
		for _, s := range raw {
			switch st := domain.LayerStatus(s); st {
			case domain.LayerPrediction, domain.LayerEdited, domain.LayerApproved, domain.LayerRejected:
				layerStatuses = append(layerStatuses, st)
			default:
				return nil, nil, fmt.Errorf("unknown layer status %q", s)
			}
		}
	}
	return imageStatuses, layerStatuses, nil
}

func (a *App) session(r *http.Request) *session.Session {
	return a.Sessions.Get(r.PathValue("sid"))
}

func (a *App) handleSessionLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageHash string `json:"image_hash"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	if err := a.session(r).Load(r.Context(), req.ImageHash); err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.handleSessionSnapshot(w, r)
}

func (a *App) handleSessionSnapshot(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, toAPISnapshot(a.session(r).Snapshot()))
}

func (a *App) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Close(r.Context(), r.PathValue("sid")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleCreation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind        domain.SourceKind      `json:"kind"`
		Label       string                 `json:"label"`
		Automask    *domain.AutomaskSource `json:"automask,omitempty"`
		Prompt      *domain.PromptSource   `json:"prompt,omitempty"`
		Predictions []struct {
			Mask  domain.CompactMask `json:"mask"`
			Score *float64           `json:"score,omitempty"`
		} `json:"predictions"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	if req.Kind != domain.SourceAutomask && req.Kind != domain.SourceInteractivePrompt {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown creation kind %q", req.Kind))
		return
	}

	creation := session.Creation{
		Kind:     req.Kind,
		Label:    req.Label,
		Automask: req.Automask,
		Prompt:   req.Prompt,
	}
	for i, p := range req.Predictions {
		mask, err := maskcodec.Decode(p.Mask)
		if err != nil {
			a.writeError(w, http.StatusUnprocessableEntity,
				fmt.Errorf("while decoding prediction %d: %w", i, err))
			return
		}
		creation.Predictions = append(creation.Predictions, session.Prediction{Mask: mask, Score: p.Score})
	}
	a.session(r).RecordCreationOutput(creation)
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected []int `json:"selected"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	ids, err := a.session(r).CommitCreationToLayers(r.Context(), req.Selected)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string][]string{"layer_ids": ids})
}

func (a *App) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	id, err := a.session(r).AddEmptyLayer(r.Context(), req.Label)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]string{"layer_id": id})
}

func (a *App) handlePatchLayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   *string   `json:"name,omitempty"`
		Labels *[]string `json:"labels,omitempty"`
		Color  *string   `json:"color,omitempty"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	s := a.session(r)
	layerID := r.PathValue("layer")

	var err error
	if req.Name != nil {
		err = s.Rename(layerID, *req.Name)
	}
	if err == nil && req.Labels != nil {
		err = s.Relabel(layerID, *req.Labels)
	}
	if err == nil && req.Color != nil {
		err = s.Recolor(layerID, *req.Color)
	}
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := a.session(r).DeleteLayer(r.Context(), r.PathValue("layer")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleEnterEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LayerID string `json:"layer_id"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	if err := a.session(r).EnterEdit(r.Context(), req.LayerID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if !a.readJSON(w, r, &req) {
		return
	}
	op, err := req.build()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.session(r).ApplyEdit(op); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleUndo(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]bool{"moved": a.session(r).UndoEdit()})
}

func (a *App) handleRedo(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]bool{"moved": a.session(r).RedoEdit()})
}

func (a *App) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	if err := a.session(r).SaveEdit(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleDiscardEdit(w http.ResponseWriter, r *http.Request) {
	a.session(r).DiscardEdit()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleStatusAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action status.Action `json:"action"`
	}
	if !a.readJSON(w, r, &req) {
		return
	}
	next, err := a.session(r).ApplyStatusAction(r.Context(), req.Action)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": string(next)})
}

// opRequest is the wire form of one mask edit operation.
type opRequest struct {
	Op     string          `json:"op"`
	Radius int             `json:"radius,omitempty"`
	Points []maskops.Point `json:"points,omitempty"`
	Erase  bool            `json:"erase,omitempty"`
}

func (r opRequest) build() (maskops.Op, error) {
	switch r.Op {
	case "grow":
		return maskops.Grow(r.Radius), nil
	case "shrink":
		return maskops.Shrink(r.Radius), nil
	case "smooth":
		return maskops.Smooth(r.Radius), nil
	case "invert":
		return maskops.Invert(), nil
	case "brush":
		return maskops.Brush(r.Points, r.Radius, r.Erase), nil
	case "lasso":
		return maskops.Lasso(r.Points, r.Erase), nil
	}
	return nil, fmt.Errorf("unknown edit operation %q", r.Op)
}

func (a *App) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("while decoding request body: %w", err))
		return false
	}
	return true
}

func (a *App) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Error().Err(err).Msg("response encoding failed")
	}
}

func (a *App) writeError(w http.ResponseWriter, code int, err error) {
	a.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (a *App) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrInvalidTransition):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidMask), errors.Is(err, domain.ErrCorruptMask):
		a.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrPersistence):
		a.writeError(w, http.StatusServiceUnavailable, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

// requestLogger wraps the handler with zerolog request logging, recording
// the status code through a capturing response writer.
func (a *App) requestLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rec, r)
		a.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
