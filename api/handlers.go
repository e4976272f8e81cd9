package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/jmcleod/backdrop/compositor"
	"github.com/jmcleod/backdrop/editor"
	"github.com/jmcleod/backdrop/internal/util"
	"github.com/jmcleod/backdrop/ledger"
)

const (
	maxSmallBodySize = 64 << 10
	photoFormField   = "photo"
)

// Start handles POST /users/{userID}/start.
func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	returning, err := a.ledger.Exists(r.Context(), userID)
	if err != nil {
		mapError(w, r, err)
		return
	}

	p := printerFor(r)
	text := p.Sprintf(msgWelcomeNew)
	if returning {
		text = p.Sprintf(msgWelcomeBack)
	}
	writeJSON(w, http.StatusOK, WelcomeResponse{
		Caption:   text,
		Returning: returning,
		Step:      a.editor.Step(userID).String(),
	})
}

// Help handles GET /help.
func (a *API) Help(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HelpResponse{
		Caption: printerFor(r).Sprintf(msgHelp),
		Colors:  compositor.Palette(),
	})
}

// UploadPhoto handles POST /users/{userID}/photos. The photo is the raw
// request body or the "photo" field of a multipart form.
func (a *API) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	img, err := a.readPhoto(w, r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid photo upload")
		}
		return
	}
	a.handle(w, r, editor.Request{
		UserID: userID,
		Intent: editor.IntentUploadPhoto,
		Image:  img,
	})
}

func (a *API) readPhoto(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := a.maxUpload
	if limit <= 0 {
		limit = DefaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile(photoFormField)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// HandleIntent handles POST /users/{userID}/intents.
func (a *API) HandleIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSmallBodySize)
	var req IntentRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return
	}

	intent := editor.Intent(req.Intent)
	if intent == editor.IntentUploadPhoto {
		writeError(w, http.StatusBadRequest, "photos are uploaded to /users/{userID}/photos")
		return
	}
	a.handle(w, r, editor.Request{
		UserID: userID,
		Intent: intent,
		Color:  req.Color,
	})
}

// handle runs req through the controller and writes the localized result.
func (a *API) handle(w http.ResponseWriter, r *http.Request, req editor.Request) {
	res, err := a.editor.Handle(r.Context(), req)
	if err != nil {
		if editor.KindOf(err) == editor.KindSegmentation {
			a.alerts.recordSegmentationFailure()
		}
		mapError(w, r, err)
		return
	}

	p := printerFor(r)
	resp := ResultResponse{
		RequestID: requestIDFromContext(r.Context()),
		Outcome:   string(res.Outcome),
		Step:      res.Step.String(),
		Caption:   caption(p, res),
		Width:     res.Width,
		Height:    res.Height,
		Color:     res.Color,
		Colors:    res.Colors,
	}
	if len(res.Image) > 0 {
		sum := blake2b.Sum256(res.Image)
		w.Header().Set("ETag", `"`+util.HexEncode(sum[:])+`"`)
		resp.Image = base64.StdEncoding.EncodeToString(res.Image)
		resp.Filename = resultFilename(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// resultFilename names the image attached to a result.
func resultFilename(res editor.Result) string {
	switch res.Outcome {
	case editor.OutcomeForegroundExtracted:
		return "no_bg_photo.png"
	case editor.OutcomeSolidApplied:
		return res.Color + "_bg.png"
	case editor.OutcomeCustomApplied:
		return "custom_bg_photo.png"
	default:
		return "result.png"
	}
}

// GetSession handles GET /users/{userID}/session.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		UserID: userID,
		Step:   a.editor.Step(userID).String(),
	})
}

// GetStats handles GET /users/{userID}/stats.
func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	rec, err := a.ledger.Read(r.Context(), userID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		UserID: userID,
		Stats:  ledger.UserStats(rec, a.ledger.Clock().Now()),
	})
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := util.Normalize(chi.URLParam(r, "userID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return "", false
	}
	return id, true
}
