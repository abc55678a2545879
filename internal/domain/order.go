package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

const (
	OrderPending              OrderStatus = "pendiente"
	OrderInReview             OrderStatus = "en_revision"
	OrderAwaitingConfirmation OrderStatus = "esperando_confirmacion"
	OrderConfirmed            OrderStatus = "confirmada"
	OrderPreparing            OrderStatus = "preparando"
	OrderReady                OrderStatus = "lista"
	OrderDelivered            OrderStatus = "entregada"
	OrderCanceled             OrderStatus = "cancelada"
)

type ItemStatus string

const (
	ItemAvailable    ItemStatus = "disponible"
	ItemOutOfStock   ItemStatus = "sin_stock"
	ItemPartialStock ItemStatus = "stock_parcial"
	ItemShortWeight  ItemStatus = "peso_insuficiente"
	ItemModified     ItemStatus = "modificado"
	ItemCanceled     ItemStatus = "cancelado"
)

type Unit string

const (
	UnitPiece    Unit = "unidad"
	UnitKilogram Unit = "kilogramo"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "efectivo"
	PaymentYape PaymentMethod = "yape"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentYape
}

type Payment struct {
	Method         PaymentMethod    `json:"metodo,omitempty"`
	Amount         *decimal.Decimal `json:"monto,omitempty"`
	ChangeRejected bool             `json:"rechazo_vuelto,omitempty"`
}

type HistoryEntry struct {
	Status  OrderStatus `json:"estado"`
	At      time.Time   `json:"fecha"`
	Comment string      `json:"comentario,omitempty"`
}

type OrderItem struct {
	ItemID       string           `json:"itemId"`
	ProductID    string           `json:"productId"`
	Name         string           `json:"nombre"`
	Image        string           `json:"imagen,omitempty"`
	Unit         Unit             `json:"unidad"`
	RequestedQty decimal.Decimal  `json:"cantidad_solicitada"`
	ChilledQty   decimal.Decimal  `json:"cantidad_helada"`
	BasePrice    decimal.Decimal  `json:"precio_base"`
	ChilledPrice *decimal.Decimal `json:"precio_helada,omitempty"`
	Chilled      bool             `json:"es_helada,omitempty"`
	Returnable   bool             `json:"es_retornable"`
	ShowPrice    *bool            `json:"mostrar_precio_web,omitempty"`

	NeedsConfirmation bool             `json:"requiere_confirmacion"`
	Status            ItemStatus       `json:"estado_item,omitempty"`
	StockAvailable    *decimal.Decimal `json:"stock_disponible,omitempty"`
	FinalQty          *decimal.Decimal `json:"cantidad_final,omitempty"`
	FinalPrice        *decimal.Decimal `json:"precio_final,omitempty"`

	IsSubstitute  bool             `json:"es_sustituto"`
	Replaces      string           `json:"sustituye_a,omitempty"`
	ProposedGrams *decimal.Decimal `json:"peso_propuesto_gramos,omitempty"`
	ProposedQty   *decimal.Decimal `json:"cantidad_propuesta,omitempty"`
}

// PriceVisible reports whether the price may be shown on the web. A missing
// flag means visible.
func (it OrderItem) PriceVisible() bool {
	return it.ShowPrice == nil || *it.ShowPrice
}

// Quantity is the final quantity once staff or reconciliation set one, else
// the requested quantity.
func (it OrderItem) Quantity() decimal.Decimal {
	if it.FinalQty != nil {
		return *it.FinalQty
	}
	return it.RequestedQty
}

func (it OrderItem) StatusOrDefault() ItemStatus {
	if it.Status == "" {
		return ItemAvailable
	}
	return it.Status
}

type Order struct {
	OrderID              string           `json:"orderId"`
	UserID               string           `json:"userId"`
	Number               int64            `json:"numeroOrden"`
	Status               OrderStatus      `json:"estado"`
	CreatedAt            time.Time        `json:"fecha_creacion"`
	UpdatedAt            time.Time        `json:"fecha_actualizacion"`
	ExpiresAt            *time.Time       `json:"expira_en,omitempty"`
	Items                []OrderItem      `json:"items"`
	EstimatedTotal       decimal.Decimal  `json:"total_estimado"`
	FinalTotal           *decimal.Decimal `json:"total_final,omitempty"`
	Change               *decimal.Decimal `json:"vuelto,omitempty"`
	Returnables          int64            `json:"envases_retornables"`
	Payment              Payment          `json:"pago"`
	History              []HistoryEntry   `json:"historial"`
	RequiresConfirmation bool             `json:"requiere_confirmacion"`
}

func (o *Order) FindItem(id string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ItemID == id {
			return it, true
		}
	}
	return OrderItem{}, false
}

func (o *Order) MainItems() []OrderItem {
	out := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if !it.IsSubstitute {
			out = append(out, it)
		}
	}
	return out
}

func (o *Order) SubstitutesOf(mainID string) []OrderItem {
	var out []OrderItem
	for _, it := range o.Items {
		if it.IsSubstitute && it.Replaces == mainID {
			out = append(out, it)
		}
	}
	return out
}

func (o *Order) AppendHistory(status OrderStatus, at time.Time, comment string) {
	o.History = append(o.History, HistoryEntry{Status: status, At: at, Comment: comment})
}

// Clone returns a deep copy so callers can build a new version of the
// document without touching the one they read.
func (o Order) Clone() Order {
	cp := o
	cp.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		cp.Items[i] = it.Clone()
	}
	cp.History = append([]HistoryEntry(nil), o.History...)
	cp.ExpiresAt = cloneTime(o.ExpiresAt)
	cp.FinalTotal = cloneDec(o.FinalTotal)
	cp.Change = cloneDec(o.Change)
	cp.Payment.Amount = cloneDec(o.Payment.Amount)
	return cp
}

func (it OrderItem) Clone() OrderItem {
	cp := it
	cp.ChilledPrice = cloneDec(it.ChilledPrice)
	cp.StockAvailable = cloneDec(it.StockAvailable)
	cp.FinalQty = cloneDec(it.FinalQty)
	cp.FinalPrice = cloneDec(it.FinalPrice)
	cp.ProposedGrams = cloneDec(it.ProposedGrams)
	cp.ProposedQty = cloneDec(it.ProposedQty)
	if it.ShowPrice != nil {
		v := *it.ShowPrice
		cp.ShowPrice = &v
	}
	return cp
}

func cloneDec(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Dec returns a pointer to d, handy for the optional money fields.
func Dec(d decimal.Decimal) *decimal.Decimal {
	return &d
}

type OrderEvent struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Number  int64       `json:"numeroOrden"`
	Status  OrderStatus `json:"estado"`
	At      time.Time   `json:"fecha"`
	Comment string      `json:"comentario,omitempty"`
	Deleted bool        `json:"eliminado,omitempty"`
}

// OrderChange is one push on a live order subscription. Deleted carries only
// the order id.
type OrderChange struct {
	Order   Order
	Deleted bool
}
