package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"
	"reserva-backend/internal/lifecycle"
	"reserva-backend/internal/metrics"
	"reserva-backend/internal/pricing"
	"reserva-backend/internal/reconcile"
	"reserva-backend/internal/revision"
	"reserva-backend/internal/timer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	Put(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	Subscribe(ctx context.Context, id string) (<-chan domain.OrderChange, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.OrderEvent) error
}

const DefaultReservationWindow = 30 * time.Minute

type OrderService struct {
	Repo              OrderRepo
	Events            EventPublisher
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Now               func() time.Time
	ReservationWindow time.Duration

	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *OrderService) window() time.Duration {
	if s.ReservationWindow <= 0 {
		return DefaultReservationWindow
	}
	return s.ReservationWindow
}

// lock serializes writers of one order inside this process. Orders share a
// fixed set of stripes, so unrelated orders may occasionally wait on each
// other.
func (s *OrderService) lock(id string) func() {
	mu := &s.locks[stripe(id)]
	mu.Lock()
	return mu.Unlock
}

func stripe(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}

func (s *OrderService) load(ctx context.Context, id string) (*domain.Order, error) {
	o, ok, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(fmt.Errorf("load order %s: %w", id, err))
	}
	if !ok {
		return nil, apperr.NotFound("order")
	}
	return o, nil
}

func (s *OrderService) loadOwned(ctx context.Context, userID, id string) (*domain.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperr.Forbidden("order belongs to another customer")
	}
	return o, nil
}

func (s *OrderService) save(ctx context.Context, o *domain.Order) error {
	if err := s.Repo.Put(ctx, o); err != nil {
		return apperr.Persistence(fmt.Errorf("save order %s: %w", o.OrderID, err))
	}
	return nil
}

func (s *OrderService) publish(ctx context.Context, o domain.Order, deleted bool) {
	if s.Events == nil {
		return
	}
	ev := domain.OrderEvent{
		OrderID: o.OrderID,
		UserID:  o.UserID,
		Number:  o.Number,
		Status:  o.Status,
		At:      o.UpdatedAt,
		Deleted: deleted,
	}
	if n := len(o.History); n > 0 && !deleted {
		ev.Comment = o.History[n-1].Comment
	}
	if deleted {
		ev.At = s.now()
	}
	err := s.Events.Publish(ctx, ev)
	s.Metrics.EventPublished(err == nil)
	if err != nil {
		s.log().Warn("publish order event", zap.String("order_id", o.OrderID), zap.Error(err))
	}
}

// CartLine is one line of the cart snapshot the order is created from.
type CartLine struct {
	ProductID    string           `json:"productId"`
	Name         string           `json:"nombre"`
	Image        string           `json:"imagen,omitempty"`
	Unit         domain.Unit      `json:"unidad"`
	Qty          decimal.Decimal  `json:"cantidad"`
	ChilledQty   decimal.Decimal  `json:"cantidad_helada"`
	BasePrice    decimal.Decimal  `json:"precio_base"`
	ChilledPrice *decimal.Decimal `json:"precio_helada,omitempty"`
	Returnable   bool             `json:"es_retornable"`
	ShowPrice    *bool            `json:"mostrar_precio_web,omitempty"`
}

type CreateOrderData struct {
	Items []CartLine `json:"items"`
}

func (s *OrderService) Create(ctx context.Context, userID string, data CreateOrderData) (*domain.Order, error) {
	if len(data.Items) == 0 {
		return nil, apperr.Validation("items", "cart is empty")
	}
	var items []domain.OrderItem
	for i, line := range data.Items {
		if err := validateCartLine(i, line); err != nil {
			return nil, err
		}
		items = append(items, splitCartLine(line)...)
	}

	now := s.now()
	o := &domain.Order{
		OrderID:        uuid.NewString(),
		UserID:         userID,
		Status:         domain.OrderPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
		EstimatedTotal: pricing.EstimatedTotal(items),
		Returnables:    pricing.CountReturnables(items),
	}
	for _, it := range items {
		if it.NeedsConfirmation {
			o.RequiresConfirmation = true
		}
	}
	o.AppendHistory(domain.OrderPending, now, "pedido creado")

	if err := s.Repo.Create(ctx, o); err != nil {
		return nil, apperr.Persistence(fmt.Errorf("create order: %w", err))
	}
	s.log().Info("order created",
		zap.String("order_id", o.OrderID),
		zap.Int64("numero_orden", o.Number),
		zap.Int("items", len(o.Items)),
	)
	s.publish(ctx, *o, false)
	return o, nil
}

func validateCartLine(i int, l CartLine) error {
	field := fmt.Sprintf("items[%d]", i)
	switch {
	case l.ProductID == "":
		return apperr.Validation(field+".productId", "product is required")
	case l.Unit != domain.UnitPiece && l.Unit != domain.UnitKilogram:
		return apperr.Validation(field+".unidad", "unknown unit "+string(l.Unit))
	case !l.Qty.IsPositive():
		return apperr.Validation(field+".cantidad", "quantity must be greater than zero")
	case l.ChilledQty.IsNegative() || l.ChilledQty.GreaterThan(l.Qty):
		return apperr.Validation(field+".cantidad_helada", "chilled quantity must be between zero and the quantity")
	case l.BasePrice.IsNegative() || (l.ChilledPrice != nil && l.ChilledPrice.IsNegative()):
		return apperr.Validation(field+".precio_base", "price cannot be negative")
	}
	return nil
}

// splitCartLine turns a line mixing chilled and ambient units into two
// sibling items. Each sibling is priced on its own.
func splitCartLine(l CartLine) []domain.OrderItem {
	base := domain.OrderItem{
		ProductID:    l.ProductID,
		Name:         l.Name,
		Image:        l.Image,
		Unit:         l.Unit,
		RequestedQty: l.Qty,
		BasePrice:    l.BasePrice,
		Returnable:   l.Returnable,
		ShowPrice:    l.ShowPrice,
		Status:       domain.ItemAvailable,
	}
	if l.ChilledPrice == nil || !l.ChilledQty.IsPositive() {
		return []domain.OrderItem{withConfirmation(base, uuid.NewString())}
	}

	chilled := base
	chilled.RequestedQty = l.ChilledQty
	chilled.ChilledQty = l.ChilledQty
	chilled.ChilledPrice = domain.Dec(*l.ChilledPrice)
	chilled.Chilled = true
	if l.ChilledQty.Equal(l.Qty) {
		return []domain.OrderItem{withConfirmation(chilled, uuid.NewString())}
	}

	ambient := base
	ambient.RequestedQty = l.Qty.Sub(l.ChilledQty)
	return []domain.OrderItem{
		withConfirmation(ambient, uuid.NewString()),
		withConfirmation(chilled, uuid.NewString()),
	}
}

func withConfirmation(it domain.OrderItem, id string) domain.OrderItem {
	it.ItemID = id
	it.NeedsConfirmation = lifecycle.ItemNeedsConfirmation(it)
	return it
}

// Get returns the order if userID owns it.
func (s *OrderService) Get(ctx context.Context, userID, id string) (*domain.Order, error) {
	return s.loadOwned(ctx, userID, id)
}

// GetAny is the staff read; no ownership check.
func (s *OrderService) GetAny(ctx context.Context, id string) (*domain.Order, error) {
	return s.load(ctx, id)
}

// Watch streams the current document followed by every later version until
// ctx is done or the order is deleted.
func (s *OrderService) Watch(ctx context.Context, userID, id string) (<-chan domain.OrderChange, error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.Repo.Subscribe(ctx, id)
	if err != nil {
		cancel()
		return nil, apperr.Persistence(fmt.Errorf("subscribe order %s: %w", id, err))
	}
	current, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan domain.OrderChange, 1)
	out <- domain.OrderChange{Order: *current}
	go func() {
		defer close(out)
		defer cancel()
		for c := range changes {
			if !c.Deleted && c.Order.UserID != userID {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if c.Deleted {
				return
			}
		}
	}()
	return out, nil
}

type TimerView struct {
	timer.Snapshot
	ExpiresAt *time.Time `json:"expira_en,omitempty"`
}

// TimerSnapshot derives the countdown from the stored expira_en.
func (s *OrderService) TimerSnapshot(ctx context.Context, userID, id string) (TimerView, error) {
	o, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return TimerView{}, err
	}
	snap := timer.New(*o, 0).Tick(s.now())
	return TimerView{Snapshot: snap, ExpiresAt: o.ExpiresAt}, nil
}

type RevisionPreview struct {
	Total     decimal.Decimal `json:"total"`
	Due       decimal.Decimal `json:"total_a_pagar"`
	PayAmount string          `json:"monto_pago"`
	Phase     lifecycle.Phase `json:"fase"`
	Expired   bool            `json:"expirada"`
}

// RevisionTotal is the live total for a list of decisions. It never writes.
func (s *OrderService) RevisionTotal(ctx context.Context, userID, id string, actions []revision.Action) (RevisionPreview, error) {
	o, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return RevisionPreview{}, err
	}
	st := revision.Replay(actions...)
	total := revision.CalculateTotal(*o, st)
	return RevisionPreview{
		Total:     total,
		Due:       pricing.RoundToTenCents(total),
		PayAmount: revision.PayAmount(*o, st),
		Phase:     lifecycle.CurrentPhase(*o),
		Expired:   timer.IsExpired(*o, s.now()),
	}, nil
}

// AcceptRevision commits the customer's decisions. Nothing is written unless
// every check passes.
func (s *OrderService) AcceptRevision(ctx context.Context, userID, id string, actions []revision.Action) (*domain.Order, error) {
	defer s.lock(id)()
	o, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	res, err := reconcile.Commit(*o, revision.Replay(actions...), reconcile.Options{
		Now:    s.now(),
		Logger: s.log(),
	})
	if err != nil {
		s.recordFailure("revision", err)
		return nil, err
	}
	for _, is := range res.Issues {
		s.Metrics.IntegrityIssue(string(is.Kind))
	}
	if err := s.save(ctx, &res.Order); err != nil {
		s.Metrics.Commit("revision", "persistence_error")
		s.log().Error("save reconciled order", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	s.Metrics.Commit("revision", "ok")
	s.log().Info("order reconciled",
		zap.String("order_id", id),
		zap.String("total_final", res.Order.FinalTotal.StringFixed(2)),
		zap.String("metodo", string(res.Order.Payment.Method)),
	)
	s.publish(ctx, res.Order, false)
	return &res.Order, nil
}

// ResolvePayment finishes the payment-only renegotiation after staff could
// not give change.
func (s *OrderService) ResolvePayment(ctx context.Context, userID, id string, method domain.PaymentMethod, amount string) (*domain.Order, error) {
	defer s.lock(id)()
	o, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	res, err := reconcile.CommitPayment(*o, method, amount, reconcile.Options{Now: s.now(), Logger: s.log()})
	if err != nil {
		s.recordFailure("payment", err)
		return nil, err
	}
	if err := s.save(ctx, &res.Order); err != nil {
		s.Metrics.Commit("payment", "persistence_error")
		return nil, err
	}
	s.Metrics.Commit("payment", "ok")
	s.publish(ctx, res.Order, false)
	return &res.Order, nil
}

func (s *OrderService) recordFailure(kind string, err error) {
	s.Metrics.Commit(kind, string(apperr.KindOf(err)))
	var ae *apperr.AppError
	if errors.As(err, &ae) && apperr.IsUserCorrectable(ae) {
		s.Metrics.ValidationFailed(ae.Field)
	}
}

// Cancel deletes the order document. No history is kept for customer
// cancellations.
func (s *OrderService) Cancel(ctx context.Context, userID, id string) error {
	defer s.lock(id)()
	o, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if !lifecycle.CustomerCancellable(*o) {
		return apperr.Conflict(fmt.Sprintf("order in state %s can no longer be cancelled", o.Status))
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return apperr.Persistence(fmt.Errorf("delete order %s: %w", id, err))
	}
	s.log().Info("order cancelled by customer", zap.String("order_id", id))
	s.publish(ctx, *o, true)
	return nil
}

func (s *OrderService) transition(ctx context.Context, id string, to domain.OrderStatus, comment string, mutate func(*domain.Order) error) (*domain.Order, error) {
	defer s.lock(id)()
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		if err := mutate(o); err != nil {
			return nil, err
		}
	}
	if err := lifecycle.Transition(o, to, s.now(), comment); err != nil {
		return nil, err
	}
	if err := s.save(ctx, o); err != nil {
		return nil, err
	}
	s.publish(ctx, *o, false)
	return o, nil
}

func (s *OrderService) BeginReview(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderInReview, "revisando stock", nil)
}

// ItemReview is staff's finding for one main item.
type ItemReview struct {
	ItemID         string            `json:"itemId"`
	Status         domain.ItemStatus `json:"estado_item"`
	StockAvailable *decimal.Decimal  `json:"stock_disponible,omitempty"`
	FinalQty       *decimal.Decimal  `json:"cantidad_final,omitempty"`
	FinalPrice     *decimal.Decimal  `json:"precio_final,omitempty"`
}

// SubstituteProposal is a stand-in product offered for a short main item.
// MaxQty caps a free-quantity substitute; ProposedGrams or ProposedQty make
// it a fixed proposal.
type SubstituteProposal struct {
	Replaces      string           `json:"sustituye_a"`
	ProductID     string           `json:"productId"`
	Name          string           `json:"nombre"`
	Image         string           `json:"imagen,omitempty"`
	Unit          domain.Unit      `json:"unidad"`
	BasePrice     decimal.Decimal  `json:"precio_base"`
	MaxQty        *decimal.Decimal `json:"cantidad_final,omitempty"`
	ProposedGrams *decimal.Decimal `json:"peso_propuesto_gramos,omitempty"`
	ProposedQty   *decimal.Decimal `json:"cantidad_propuesta,omitempty"`
	Returnable    bool             `json:"es_retornable"`
}

type ReviewData struct {
	Items       []ItemReview         `json:"items"`
	Substitutes []SubstituteProposal `json:"sustitutos"`
}

// SubmitReview records the stock review and hands the order to the customer
// with a fresh reservation window.
func (s *OrderService) SubmitReview(ctx context.Context, id string, data ReviewData) (*domain.Order, error) {
	now := s.now()
	return s.transition(ctx, id, domain.OrderAwaitingConfirmation, "revisión de stock completada", func(o *domain.Order) error {
		if o.Status != domain.OrderInReview {
			return apperr.Conflict("order is not under review")
		}
		if err := applyReview(o, data); err != nil {
			return err
		}
		exp := now.Add(s.window())
		o.ExpiresAt = &exp
		o.RequiresConfirmation = lifecycle.RequiresConfirmation(o.Items)
		return nil
	})
}

func applyReview(o *domain.Order, data ReviewData) error {
	index := map[string]int{}
	for i, it := range o.Items {
		if !it.IsSubstitute {
			index[it.ItemID] = i
		}
	}
	for n, r := range data.Items {
		field := fmt.Sprintf("items[%d]", n)
		i, ok := index[r.ItemID]
		if !ok {
			return apperr.Validation(field+".itemId", "unknown item "+r.ItemID)
		}
		it := &o.Items[i]
		switch r.Status {
		case domain.ItemAvailable, domain.ItemShortWeight:
		case domain.ItemOutOfStock:
			r.StockAvailable = domain.Dec(decimal.Zero)
		case domain.ItemPartialStock:
			if r.StockAvailable == nil || !r.StockAvailable.IsPositive() || !r.StockAvailable.LessThan(it.RequestedQty) {
				return apperr.Validation(field+".stock_disponible", "partial stock must be between zero and the requested quantity")
			}
			if r.FinalQty == nil {
				r.FinalQty = domain.Dec(decimal.Min(*r.StockAvailable, it.RequestedQty))
			}
			if r.FinalQty.GreaterThan(*r.StockAvailable) || !r.FinalQty.IsPositive() {
				return apperr.Validation(field+".cantidad_final", "final quantity cannot exceed the available stock")
			}
		default:
			return apperr.Validation(field+".estado_item", "unknown item state "+string(r.Status))
		}
		if r.FinalPrice != nil && r.FinalPrice.IsNegative() {
			return apperr.Validation(field+".precio_final", "price cannot be negative")
		}
		it.Status = r.Status
		it.StockAvailable = r.StockAvailable
		if r.FinalQty != nil {
			it.FinalQty = r.FinalQty
		}
		if r.FinalPrice != nil {
			it.FinalPrice = r.FinalPrice
		}
	}

	for n, p := range data.Substitutes {
		field := fmt.Sprintf("sustitutos[%d]", n)
		i, ok := index[p.Replaces]
		if !ok {
			return apperr.Validation(field+".sustituye_a", "substitute must replace an item of this order")
		}
		parent := o.Items[i]
		switch parent.Status {
		case domain.ItemOutOfStock, domain.ItemPartialStock:
		default:
			return apperr.Validation(field+".sustituye_a", "item "+p.Replaces+" is not short on stock")
		}
		if p.BasePrice.IsNegative() {
			return apperr.Validation(field+".precio_base", "price cannot be negative")
		}
		unit := p.Unit
		if unit == "" {
			unit = parent.Unit
		}
		limit := parent.RequestedQty
		if parent.StockAvailable != nil {
			limit = limit.Sub(*parent.StockAvailable)
		}
		if p.MaxQty != nil {
			limit = *p.MaxQty
		}
		if !limit.IsPositive() {
			return apperr.Validation(field+".cantidad_final", "substitute quantity must be greater than zero")
		}
		sub := domain.OrderItem{
			ItemID:        uuid.NewString(),
			ProductID:     p.ProductID,
			Name:          p.Name,
			Image:         p.Image,
			Unit:          unit,
			RequestedQty:  limit,
			BasePrice:     p.BasePrice,
			Returnable:    p.Returnable,
			Status:        domain.ItemAvailable,
			FinalQty:      domain.Dec(limit),
			IsSubstitute:  true,
			Replaces:      p.Replaces,
			ProposedGrams: p.ProposedGrams,
			ProposedQty:   p.ProposedQty,
		}
		o.Items = append(o.Items, sub)
	}
	return nil
}

// RejectChange is staff reporting they cannot give change for the cash the
// customer will bring. The order goes back to the customer for payment only.
func (s *OrderService) RejectChange(ctx context.Context, id string) (*domain.Order, error) {
	now := s.now()
	return s.transition(ctx, id, domain.OrderAwaitingConfirmation, "el local no tiene vuelto", func(o *domain.Order) error {
		if o.Status != domain.OrderConfirmed {
			return apperr.Conflict("only confirmed orders can have their change rejected")
		}
		if o.Payment.Method != domain.PaymentCash || o.Change == nil || !o.Change.IsPositive() {
			return apperr.Conflict("order does not need change")
		}
		o.Payment.ChangeRejected = true
		exp := now.Add(s.window())
		o.ExpiresAt = &exp
		return nil
	})
}

// Advance moves a confirmed order through fulfilment or cancels it.
func (s *OrderService) Advance(ctx context.Context, id string, to domain.OrderStatus, comment string) (*domain.Order, error) {
	switch to {
	case domain.OrderPreparing, domain.OrderReady, domain.OrderDelivered, domain.OrderCanceled:
	default:
		return nil, apperr.Validation("estado", "status "+string(to)+" cannot be set directly")
	}
	return s.transition(ctx, id, to, comment, func(o *domain.Order) error {
		if to == domain.OrderCanceled {
			o.ExpiresAt = nil
		}
		return nil
	})
}

// ExpireOverdue cancels every order whose reservation window closed while it
// waited for the customer. It returns how many were cancelled.
func (s *OrderService) ExpireOverdue(ctx context.Context) (int, error) {
	waiting, err := s.Repo.ListByStatus(ctx, domain.OrderAwaitingConfirmation)
	if err != nil {
		return 0, apperr.Persistence(fmt.Errorf("list waiting orders: %w", err))
	}
	n := 0
	for _, o := range waiting {
		if !timer.IsExpired(o, s.now()) {
			continue
		}
		_, err := s.transition(ctx, o.OrderID, domain.OrderCanceled, "reserva expirada", func(cur *domain.Order) error {
			if !timer.IsExpired(*cur, s.now()) {
				return apperr.Conflict("order no longer expired")
			}
			cur.ExpiresAt = nil
			return nil
		})
		switch {
		case err == nil:
			n++
			s.Metrics.OrderExpired()
			s.log().Info("reservation expired", zap.String("order_id", o.OrderID))
		case apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindNotFound):
		default:
			s.log().Warn("expire order", zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}
	return n, nil
}
