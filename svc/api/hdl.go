package api

import (
	"encoding/json"
	"io"
	"net/http"

	"lyricbox/cfg"
	"lyricbox/pkg/domain"
	"lyricbox/svc/auth"
	"lyricbox/svc/lim"
	"lyricbox/svc/svc"
	"lyricbox/svc/util"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

const allowedMethods = "GET, POST, PUT, DELETE"

type Hdl struct {
	board *svc.Board
	admin *auth.Admin
	cfg   *cfg.Cfg
}

type errResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
type listResp struct {
	OK    bool          `json:"ok"`
	Items []domain.View `json:"items"`
}
type itemResp struct {
	OK   bool `json:"ok"`
	Item any  `json:"item"`
}
type deleteResp struct {
	OK bool `json:"ok"`
	svc.DeleteResult
}

func (h *Hdl) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.List(r.Context(), r.URL.Query().Get("promptId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{OK: true, Items: items})
}

func (h *Hdl) Create(w http.ResponseWriter, r *http.Request) {
	var req svc.CreateReq
	if err := h.decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	created, err := h.board.Create(r.Context(), r.URL.Query().Get("promptId"), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().
		Str("entry_id", created.ID).
		Str("prompt_id", created.PromptID).
		Msg("entry created")
	writeJSON(w, http.StatusCreated, itemResp{OK: true, Item: created})
}

func (h *Hdl) Delete(w http.ResponseWriter, r *http.Request) {
	var req svc.DeleteReq
	if err := h.decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	admin := h.admin.Verify(r)
	res, err := h.board.Delete(r.Context(), q.Get("promptId"), q.Get("id"), req.DeleteKey, admin)
	if err != nil {
		logAuthFailure(r, err, req.DeleteKey)
		writeErr(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().
		Str("entry_id", q.Get("id")).
		Int64("removed", res.Removed).
		Bool("admin", res.Admin).
		Msg("entry deleted")
	writeJSON(w, http.StatusOK, deleteResp{OK: true, DeleteResult: *res})
}

func (h *Hdl) Update(w http.ResponseWriter, r *http.Request) {
	var req svc.UpdateReq
	if err := h.decode(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	view, err := h.board.Update(r.Context(), q.Get("promptId"), q.Get("id"), req)
	if err != nil {
		logAuthFailure(r, err, req.DeleteKey)
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResp{OK: true, Item: view})
}

func (h *Hdl) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", allowedMethods)
	writeErr(w, r, domain.ErrMethodNotAllowed)
}

// decode reads an optional JSON body into v. A missing or malformed body
// leaves v empty so field validation reports what is missing.
func (h *Hdl) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return domain.ErrBodyTooLarge
		}
		return errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return nil
	}
	if !json.Valid(data) {
		hlog.FromRequest(r).Debug().Int("size", len(data)).Msg("ignoring malformed request body")
		return nil
	}
	// fields of the wrong type are left unset
	_ = json.Unmarshal(data, v)
	return nil
}

func logAuthFailure(r *http.Request, err error, key string) {
	if domain.Status(err) != http.StatusForbidden {
		return
	}
	hlog.FromRequest(r).Warn().
		Str("entry_id", r.URL.Query().Get("id")).
		Str("delete_key", util.RedactToken(key)).
		Str("ip", util.RedactIP(lim.ClientID(r))).
		Msg("rejected delete key")
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.Status(err)
	msg := domain.Message(err)
	if status >= 500 {
		util.Error().
			Err(err).
			Str("request_id", util.GetRequestID(r.Context())).
			Str("method", r.Method).
			Msg("request failed")
	}
	writeJSON(w, status, errResp{OK: false, Error: msg})
}
