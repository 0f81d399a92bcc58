package wardrobe

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chromacloset/chromacloset/internal/capture"
	"github.com/chromacloset/chromacloset/internal/extraction"
	"github.com/chromacloset/chromacloset/internal/imaging"
	"github.com/chromacloset/chromacloset/internal/stylist"
)

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// candidateJSON is the wire shape of a staged review item.
type candidateJSON struct {
	ID               string          `json:"id"`
	Category         string          `json:"category"`
	Subcategory      string          `json:"subcategory"`
	Brand            string          `json:"brand"`
	DominantColorHex string          `json:"dominant_color_hex"`
	ColorFamily      string          `json:"color_family"`
	ColorName        string          `json:"color_name"`
	PatternType      string          `json:"pattern_type"`
	Confidence       float64         `json:"confidence"`
	Box              *extraction.Box `json:"box,omitempty"`
}

type statusJSON struct {
	Token      string          `json:"token"`
	State      string          `json:"state"`
	Message    string          `json:"message,omitempty"`
	Warning    string          `json:"warning,omitempty"`
	Candidates []candidateJSON `json:"candidates"`
}

func statusResponse(status *ScanStatus) statusJSON {
	out := statusJSON{
		Token:      status.Token,
		State:      status.State.String(),
		Message:    status.Message,
		Warning:    status.Warning,
		Candidates: make([]candidateJSON, 0, len(status.Candidates)),
	}
	for _, c := range status.Candidates {
		out.Candidates = append(out.Candidates, candidateJSON{
			ID:               c.ID,
			Category:         c.Item.Category,
			Subcategory:      c.Item.Subcategory,
			Brand:            c.Item.Brand,
			DominantColorHex: c.Item.DominantColorHex,
			ColorFamily:      c.Item.ColorFamily,
			ColorName:        c.Item.ColorName,
			PatternType:      c.Item.PatternType,
			Confidence:       c.Item.Confidence,
			Box:              c.Item.Box,
		})
	}
	return out
}

// writeScanError maps the error taxonomy onto user-facing responses. Every
// failure returns the client to a stable state; nothing here is fatal.
func writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrNoFileSelected):
		// Cancelled picker: a no-op, not an error surfaced to the user.
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, imaging.ErrDecode):
		jsonError(w, http.StatusBadRequest, "Could not read that image. Please retry with a different photo.")
	case errors.Is(err, capture.ErrDeviceAccessDenied):
		jsonError(w, http.StatusServiceUnavailable, "Camera unavailable. Continue by uploading a photo instead.")
	case errors.Is(err, extraction.ErrUnavailable):
		jsonError(w, http.StatusServiceUnavailable, "AI analysis is unavailable right now. Nothing was saved; please retry.")
	default:
		slog.Error("Scan failed", "error", err)
		jsonError(w, http.StatusBadRequest, err.Error())
	}
}

// handleStartScan begins one capture-through-review cycle from an uploaded
// file or the configured camera.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	mode := extraction.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = extraction.GarmentDetection
	}
	if !mode.Valid() {
		jsonError(w, http.StatusBadRequest, "Unknown scan mode. Use garment-detection or tag-decode.")
		return
	}

	var (
		status *ScanStatus
		err    error
	)
	if r.URL.Query().Get("source") == "camera" {
		status, err = s.service.StartCameraScan(r.Context(), mode)
	} else {
		src, srcErr := uploadSourceFromRequest(r)
		if srcErr != nil {
			jsonError(w, http.StatusBadRequest, srcErr.Error())
			return
		}
		status, err = s.service.StartScan(r.Context(), src, mode)
	}
	if err != nil {
		writeScanError(w, err)
		return
	}

	code := http.StatusCreated
	if status.State == StateDiscarded {
		// Zero items detected: valid terminal outcome with guidance.
		code = http.StatusOK
	}
	writeJSON(w, code, statusResponse(status))
}

// uploadSourceFromRequest parses the multipart upload. A missing file is
// not an error here; the source reports it as a cancelled selection.
func uploadSourceFromRequest(r *http.Request) (*capture.UploadSource, error) {
	// 50MB to handle high-resolution phone photos.
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		if err == http.ErrNotMultipart {
			return capture.NewUploadSource(nil, "", ""), nil
		}
		return nil, errors.New("could not parse upload form")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return capture.NewUploadSource(nil, "", ""), nil
		}
		return nil, errors.New("could not read uploaded file")
	}
	defer f.Close()

	if header.Size > maxFormSize {
		return nil, errors.New("file is too large; maximum size is 50MB")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.New("could not read uploaded file")
	}

	return capture.NewUploadSource(data, header.Header.Get("Content-Type"), header.Filename), nil
}

// handleSessionStatus returns the current view of a review session.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.SessionStatus(r.PathValue("token"))
	if err != nil {
		jsonError(w, http.StatusNotFound, "Scan session not found or expired.")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(status))
}

// handleRemoveCandidate removes one staged item from the review batch.
func (s *Server) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.RemoveCandidate(r.PathValue("token"), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(status))
}

// handleCommitScan accepts the remaining batch into the inventory.
func (s *Server) handleCommitScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.CommitScan(r.PathValue("token"))
	if err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_timestamp": result.ScanTimestamp,
		"items":          result.Items,
		"warning":        result.Warning,
	})
}

// handleDiscardScan abandons a session. Destroying an in-review batch
// requires confirm=true.
func (s *Server) handleDiscardScan(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := s.service.DiscardScan(r.PathValue("token"), confirmed); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems returns the committed inventory.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Items())
}

// handleItemImage serves the stored source image for an item.
func (s *Server) handleItemImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.ItemImage(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, "Item image not found.")
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSummary returns the aggregate view backing the overview and
// color-explorer screens.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	items := s.service.Items()
	byCategory := make(map[string]int)
	byFamily := make(map[string]int)
	for _, item := range items {
		byCategory[string(item.Category)]++
		byFamily[item.ColorFamily]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_count":      len(items),
		"total_scanned":   s.service.TotalScanned(),
		"by_category":     byCategory,
		"by_color_family": byFamily,
		"scan_count":      len(s.service.Scans()),
		"storage_warning": s.service.StoreWarning(),
	})
}

// handleHistory returns the scan history, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Scans())
}

// handleDeleteScanGroup removes a scan record and its items.
func (s *Server) handleDeleteScanGroup(w http.ResponseWriter, r *http.Request) {
	timestamp, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid scan timestamp.")
		return
	}
	if err := s.service.DeleteScanGroup(timestamp); err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleReset clears the entire inventory. Irreversible, so it demands
// explicit confirmation.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		jsonError(w, http.StatusBadRequest, "Resetting the closet requires confirm=true.")
		return
	}
	if err := s.service.Reset(); err != nil {
		slog.Error("Error resetting inventory", "error", err)
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetBrandIcon serves the optional branding image.
func (s *Server) handleGetBrandIcon(w http.ResponseWriter, r *http.Request) {
	data, contentType := s.service.BrandIcon()
	if data == nil {
		jsonError(w, http.StatusNotFound, "No brand icon set.")
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSetBrandIcon stores the branding image.
func (s *Server) handleSetBrandIcon(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil || len(data) == 0 {
		jsonError(w, http.StatusBadRequest, "Could not read icon body.")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	s.service.SetBrandIcon(data, contentType)
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

type outfitRequest struct {
	Occasion string `json:"occasion"`
	Persona  string `json:"persona"`
	Weather  string `json:"weather"`
}

// handleOutfits asks the styling assistant to curate outfits from the
// committed inventory.
func (s *Server) handleOutfits(w http.ResponseWriter, r *http.Request) {
	if s.stylist == nil {
		jsonError(w, http.StatusServiceUnavailable, "Styling assistant is not configured.")
		return
	}

	var req outfitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Occasion == "" {
		req.Occasion = "everyday"
	}
	if req.Persona == "" {
		req.Persona = "Classic Professional"
	}

	outfits := s.stylist.SuggestOutfits(r.Context(), s.itemManifest(), req.Occasion, req.Persona, req.Weather)
	if outfits == nil {
		outfits = []stylist.Outfit{}
	}
	writeJSON(w, http.StatusOK, outfits)
}

// handleGaps asks the styling assistant for missing versatile basics.
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	if s.stylist == nil {
		jsonError(w, http.StatusServiceUnavailable, "Styling assistant is not configured.")
		return
	}
	gaps := s.stylist.AnalyzeGaps(r.Context(), s.itemManifest())
	if gaps == nil {
		gaps = []stylist.Gap{}
	}
	writeJSON(w, http.StatusOK, gaps)
}

func (s *Server) itemManifest() []stylist.ItemSummary {
	items := s.service.Items()
	manifest := make([]stylist.ItemSummary, 0, len(items))
	for _, item := range items {
		manifest = append(manifest, stylist.ItemSummary{
			ID:          item.ID,
			Category:    string(item.Category),
			Subcategory: item.Subcategory,
			ColorName:   item.ColorName,
			ColorFamily: item.ColorFamily,
		})
	}
	return manifest
}
