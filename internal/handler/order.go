package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/order"
)

func decodeItems(d *jx.Decoder) ([]order.ItemInput, error) {
	items := []order.ItemInput{}
	err := d.Arr(func(d *jx.Decoder) error {
		var in order.ItemInput
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "item_id":
				in.ItemID, err = d.Str()
			case "quantity":
				in.Quantity, err = d.Int()
			case "unit_price":
				in.UnitPrice, err = readOptMoney(d, "unit_price")
			case "notes":
				in.Notes, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
		items = append(items, in)
		return err
	})
	return items, err
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "table_number":
			req.TableNumber, err = readOptInt(d)
		case "cashier_id":
			req.CashierID, err = readOptString(d)
		case "notes":
			req.Notes, err = d.Str()
		case "items":
			req.Items, err = decodeItems(d)
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

	detail, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeDetail(e, detail, nil) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	req := order.UpdateRequest{OrderID: r.PathValue("id")}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "table_number":
			req.TableNumber, err = readOptInt(d)
		case "notes":
			req.Notes, err = readOptString(d)
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Items, err = decodeItems(d)
		case "discount_id":
			req.DiscountID, err = readOptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.DiscountID != nil {
		uid := principal(r.Context()).UserID
		req.AppliedBy = &uid
	}

	res, err := h.orders.Update(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetail(e, res.Detail, res.Discount) })
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := order.ParseStatus(status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.SetStatus(r.Context(), r.PathValue("id"), st)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeOrderFields(e, o)
		e.ObjEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetail(e, detail, nil) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	f := order.ListFilter{
		Status:    order.Status(q.str("status")),
		CashierID: q.str("cashier_id"),
		From:      q.timeParam("from"),
		To:        q.timeParam("to"),
		Limit:     q.intParam("limit"),
		Offset:    q.intParam("offset"),
	}
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, orders, func(e *jx.Encoder, o *order.Order) {
		e.ObjStart()
		encodeOrderFields(e, o)
		e.ObjEnd()
	})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, r, apperr.Validation("order id required"))
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "id", id)
		fieldBool(e, "deleted", true)
		e.ObjEnd()
	})
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	fieldStr(e, "id", o.ID)
	fieldTime(e, "order_date", o.CreatedAt)
	if o.TableNumber != nil {
		fieldInt(e, "table_number", *o.TableNumber)
	}
	fieldStr(e, "status", string(o.Status))
	fieldMoney(e, "total_amount", o.TotalAmount)
	fieldMoney(e, "discount_amount", o.DiscountAmount)
	fieldMoney(e, "final_amount", o.FinalAmount)
	fieldOptStr(e, "cashier_id", o.CashierID)
	fieldStr(e, "notes", o.Notes)
	fieldTime(e, "updated_at", o.UpdatedAt)
}

func encodeDetail(e *jx.Encoder, d *order.Detail, outcome *order.DiscountOutcome) {
	e.ObjStart()
	encodeOrderFields(e, &d.Order)
	fieldMoney(e, "paid_amount", d.PaidAmount)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range d.Items {
		e.ObjStart()
		fieldStr(e, "id", it.ID)
		fieldStr(e, "item_id", it.ItemID)
		fieldStr(e, "item_name", it.ItemName)
		fieldMoney(e, "unit_price", it.UnitPrice)
		fieldInt(e, "quantity", it.Quantity)
		fieldMoney(e, "item_total", it.ItemTotal)
		fieldStr(e, "notes", it.Notes)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("discounts")
	e.ArrStart()
	for _, ad := range d.Discounts {
		e.ObjStart()
		fieldStr(e, "discount_id", ad.DiscountID)
		fieldMoney(e, "applied_value", ad.AppliedValue)
		fieldOptStr(e, "applied_by", ad.AppliedBy)
		fieldTime(e, "applied_at", ad.AppliedAt)
		e.ObjEnd()
	}
	e.ArrEnd()

	if outcome != nil {
		e.FieldStart("discount_outcome")
		e.ObjStart()
		fieldStr(e, "discount_id", outcome.DiscountID)
		fieldBool(e, "applied", outcome.Applied)
		fieldMoney(e, "amount", outcome.Amount)
		if outcome.Reason != "" {
			fieldStr(e, "reason", string(outcome.Reason))
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}
