package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reserva-backend/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const notifyChannel = "order_changes"

// PostgresRepo stores each order as one JSON document row, so every write is
// a single statement and readers never see a half-written item list. Writes
// raise a NOTIFY that feeds the live subscriptions.
type PostgresRepo struct {
	db  *sql.DB
	dsn string
	log *zap.Logger
	hub *hub

	once     sync.Once
	listener *pq.Listener
	done     chan struct{}
}

func NewPostgresRepo(dsn string, log *zap.Logger) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &PostgresRepo{db: db, dsn: dsn, log: log, hub: newHub(), done: make(chan struct{})}
	if err := r.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE SEQUENCE IF NOT EXISTS order_numbers;`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		numero_orden BIGINT NOT NULL,
		estado TEXT NOT NULL,
		expira_en TIMESTAMPTZ,
		doc TEXT NOT NULL,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS orders_estado_idx ON orders (estado, expira_en);`)
	return err
}

func (r *PostgresRepo) Create(ctx context.Context, o *domain.Order) error {
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('order_numbers')`).Scan(&o.Number); err != nil {
		return fmt.Errorf("next order number: %w", err)
	}
	return r.Put(ctx, o)
}

func (r *PostgresRepo) Put(ctx context.Context, o *domain.Order) error {
	doc, err := encodeOrder(o)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO orders (order_id,user_id,numero_orden,estado,expira_en,doc,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (order_id) DO UPDATE SET estado=$4,expira_en=$5,doc=$6,updated_at=$8`,
		o.OrderID, o.UserID, o.Number, string(o.Status), nullTime(o.ExpiresAt), doc, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, o.OrderID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM orders WHERE order_id=$1`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	o, err := decodeOrder(doc)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM orders WHERE estado=$1 ORDER BY numero_orden ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		o, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Subscribe starts the shared LISTEN connection on first use.
func (r *PostgresRepo) Subscribe(ctx context.Context, id string) (<-chan domain.OrderChange, error) {
	var err error
	r.once.Do(func() { err = r.listen() })
	if err != nil {
		return nil, err
	}
	if r.listener == nil {
		return nil, fmt.Errorf("order listener unavailable")
	}
	return r.hub.subscribe(ctx, id), nil
}

func (r *PostgresRepo) listen() error {
	l := pq.NewListener(r.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.log.Warn("order listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(notifyChannel); err != nil {
		_ = l.Close()
		return err
	}
	r.listener = l
	go r.dispatch(l)
	return nil
}

func (r *PostgresRepo) dispatch(l *pq.Listener) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-r.done:
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; notifications may have been missed.
			if n == nil {
				continue
			}
			r.forward(n.Extra)
		case <-ping.C:
			go func() { _ = l.Ping() }()
		}
	}
}

func (r *PostgresRepo) forward(id string) {
	if !r.hub.watched(id) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, ok, err := r.Get(ctx, id)
	if err != nil {
		r.log.Warn("reload notified order", zap.String("order_id", id), zap.Error(err))
		return
	}
	if !ok {
		r.hub.publish(domain.OrderChange{Order: domain.Order{OrderID: id}, Deleted: true})
		return
	}
	r.hub.publish(domain.OrderChange{Order: *o})
}

func (r *PostgresRepo) Close() error {
	close(r.done)
	if r.listener != nil {
		_ = r.listener.Close()
	}
	return r.db.Close()
}

func encodeOrder(o *domain.Order) (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode order %s: %w", o.OrderID, err)
	}
	return string(b), nil
}

func decodeOrder(doc string) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal([]byte(doc), &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return &o, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
