package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/posledger/internal/domain/payment"
)

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	req := payment.RecordRequest{OrderID: r.PathValue("id")}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "payment_method":
			var s string
			s, err = d.Str()
			req.Method = payment.Method(s)
		case "amount":
			req.Amount, err = readMoney(d, "amount")
		case "transaction_ref":
			req.TransactionRef, err = readOptString(d)
		case "cashier_id":
			req.CashierID, err = readOptString(d)
		case "notes":
			req.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.CashierID == nil {
		uid := principal(r.Context()).UserID
		req.CashierID = &uid
	}

	receipt, err := h.payments.Record(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("payment")
		encodePayment(e, &receipt.Payment)
		fieldOptStr(e, "shift_id", receipt.ShiftID)
		fieldMoney(e, "paid_total", receipt.PaidTotal)
		fieldStr(e, "order_status", string(receipt.OrderStatus))
		fieldBool(e, "completed", receipt.Completed)
		e.ObjEnd()
	})
}

func (h *Handler) listOrderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListForOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, payments, encodePayment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	f := payment.Filter{
		OrderID:   q.str("order_id"),
		CashierID: q.str("cashier_id"),
		Method:    payment.Method(q.str("method")),
		From:      q.timeParam("from"),
		To:        q.timeParam("to"),
		Limit:     q.intParam("limit"),
		Offset:    q.intParam("offset"),
	}
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}

	payments, err := h.payments.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, payments, encodePayment)
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.ObjStart()
	fieldStr(e, "id", p.ID)
	fieldStr(e, "order_id", p.OrderID)
	fieldMoney(e, "amount", p.Amount)
	fieldStr(e, "payment_method", string(p.Method))
	fieldOptStr(e, "transaction_ref", p.TransactionRef)
	fieldOptStr(e, "cashier_id", p.CashierID)
	fieldStr(e, "notes", p.Notes)
	fieldTime(e, "paid_at", p.PaidAt)
	e.ObjEnd()
}
