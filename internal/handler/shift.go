package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/auth"
	"github.com/xenking/posledger/internal/domain/shift"
)

func (h *Handler) startShift(w http.ResponseWriter, r *http.Request) {
	var (
		userID  *string
		opening *decimal.Decimal
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			userID, err = readOptString(d)
		case "opening_cash":
			opening, err = readOptMoney(d, "opening_cash")
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if opening == nil {
		writeError(w, r, apperr.Validation("opening_cash required"))
		return
	}

	p := principal(r.Context())
	uid := p.UserID
	if userID != nil && *userID != p.UserID {
		// Opening a drawer for someone else is a supervisor action.
		if !p.Allowed(auth.RoleSupervisor, auth.RoleOwner) {
			writeProblem(w, http.StatusForbidden, "forbidden", "cashiers may only start their own shift")
			return
		}
		uid = *userID
	}

	s, err := h.shifts.Start(r.Context(), uid, *opening)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum := shift.Summarize(s)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeShift(e, &sum) })
}

func (h *Handler) endShift(w http.ResponseWriter, r *http.Request) {
	var (
		closing *decimal.Decimal
		notes   *string
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "closing_cash":
			closing, err = readOptMoney(d, "closing_cash")
		case "notes":
			notes, err = readOptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if closing == nil {
		writeError(w, r, apperr.Validation("closing_cash required"))
		return
	}

	sum, err := h.shifts.End(r.Context(), r.PathValue("id"), *closing, notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShift(e, sum) })
}

func (h *Handler) adjustShift(w http.ResponseWriter, r *http.Request) {
	var adj shift.Adjustment
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "opening_cash":
			adj.OpeningCash, err = readOptMoney(d, key)
		case "closing_cash":
			adj.ClosingCash, err = readOptMoney(d, key)
		case "cash_in":
			adj.CashIn, err = readOptMoney(d, key)
		case "cash_out":
			adj.CashOut, err = readOptMoney(d, key)
		case "sales_amount_cash":
			adj.SalesCash, err = readOptMoney(d, key)
		case "sales_amount_card":
			adj.SalesCard, err = readOptMoney(d, key)
		case "reconciled":
			adj.Reconciled, err = readOptBool(d)
		case "notes":
			adj.Notes, err = readOptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sum, err := h.shifts.Adjust(r.Context(), r.PathValue("id"), adj)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShift(e, sum) })
}

func (h *Handler) getShift(w http.ResponseWriter, r *http.Request) {
	sum, err := h.shifts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShift(e, sum) })
}

// activeShift reports the caller's open shift, or another user's for
// supervisors and owners.
func (h *Handler) activeShift(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())
	uid := p.UserID
	if other := r.URL.Query().Get("user_id"); other != "" && other != p.UserID {
		if !p.Allowed(auth.RoleSupervisor, auth.RoleOwner) {
			writeProblem(w, http.StatusForbidden, "forbidden", "cashiers may only view their own shift")
			return
		}
		uid = other
	}

	sum, err := h.shifts.Active(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShift(e, sum) })
}

func (h *Handler) listShifts(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	f := shift.Filter{
		UserID:     q.str("user_id"),
		ActiveOnly: q.boolParam("active"),
		From:       q.timeParam("from"),
		To:         q.timeParam("to"),
		Limit:      q.intParam("limit"),
		Offset:     q.intParam("offset"),
	}
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}

	shifts, err := h.shifts.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, shifts, encodeShift)
}

func encodeShift(e *jx.Encoder, s *shift.Summary) {
	e.ObjStart()
	fieldStr(e, "id", s.ID)
	fieldStr(e, "user_id", s.UserID)
	fieldTime(e, "shift_start", s.Start)
	fieldOptTime(e, "shift_end", s.End)
	fieldMoney(e, "opening_cash", s.OpeningCash)
	fieldOptMoney(e, "closing_cash", s.ClosingCash)
	fieldMoney(e, "sales_amount_cash", s.SalesCash)
	fieldMoney(e, "sales_amount_card", s.SalesCard)
	fieldMoney(e, "cash_in", s.CashIn)
	fieldMoney(e, "cash_out", s.CashOut)
	fieldBool(e, "reconciled", s.Reconciled)
	fieldStr(e, "notes", s.Notes)
	fieldMoney(e, "expected_cash", s.ExpectedCash)
	fieldOptMoney(e, "discrepancy", s.Discrepancy)
	e.ObjEnd()
}
