package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к заказам в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithTx выполняет fn в транзакции. Транзакции, прерванные из-за взаимной блокировки или
// конфликта сериализации, повторяются; если попытки исчерпаны, возвращается model.ErrConflict.
func (r *PostgresRepository) WithTx(ctx context.Context, fn TxFunc) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetOrder возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// FindOrders возвращает заказы по фильтру, отсортированные по дате заказа по убыванию,
// и общее число подходящих заказов без учёта пагинации.
func (r *PostgresRepository) FindOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	where, args := orderWhere(filter)

	var total int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders o` + where + ` ORDER BY o.order_date DESC, o.created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, max(filter.Offset, 0))
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	if err := attachItems(ctx, r.pool, orders); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListOrderIDs возвращает идентификаторы всех заказов в порядке создания.
func (r *PostgresRepository) ListOrderIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select order ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) InsertOrder(ctx context.Context, order *model.Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		order.ID,
		order.Customer.Name, order.Customer.Code, order.Customer.Address, order.Customer.Phone, order.Customer.Note,
		order.IsCompensationOrder, order.IsOverDebtLimit, order.OrderDate, order.VehicleID, order.CreatedBy,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return writeItems(ctx, t.tx, order)
}

func (t *pgTx) UpdateOrder(ctx context.Context, order *model.Order) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET
		   customer_name = $2, customer_code = $3, customer_address = $4, customer_phone = $5, customer_note = $6,
		   is_compensation_order = $7, is_over_debt_limit = $8, order_date = $9, vehicle_id = $10, updated_at = $11
		 WHERE id = $1`,
		order.ID,
		order.Customer.Name, order.Customer.Code, order.Customer.Address, order.Customer.Phone, order.Customer.Note,
		order.IsCompensationOrder, order.IsOverDebtLimit, order.OrderDate, order.VehicleID, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	// Позиции принадлежат заказу целиком и перезаписываются вместе с ним.
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	return writeItems(ctx, t.tx, order)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// querier реализуется и *pgxpool.Pool, и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const orderColumns = `id, customer_name, customer_code, customer_address, customer_phone, customer_note,
	is_compensation_order, is_over_debt_limit, order_date, vehicle_id, created_by, created_at, updated_at`

const itemColumns = `id, order_id, stt, product_name, size, unit, quantity, warehouse, cm_qty, cm_qty_per_unit, note,
	warehouse_confirm_value, warehouse_confirmed_at, leader_confirm_value, leader_confirmed_at,
	shortage_qty, compensated_qty, shortage_status, source_order_id, source_item_id`

func getOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	orders := []model.Order{*o}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID,
		&o.Customer.Name, &o.Customer.Code, &o.Customer.Address, &o.Customer.Phone, &o.Customer.Note,
		&o.IsCompensationOrder, &o.IsOverDebtLimit, &o.OrderDate, &o.VehicleID, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func attachItems(ctx context.Context, q querier, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID.String())
		index[orders[i].ID] = i
		orders[i].Items = []model.Item{}
	}

	rows, err := q.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		orderID, item, err := scanItem(rows)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func scanItem(rows pgx.Rows) (uuid.UUID, model.Item, error) {
	var (
		it            model.Item
		orderID       uuid.UUID
		warehouse     string
		status        string
		whValue       *string
		whConfirmedAt *time.Time
		leaderValue   decimal.NullDecimal
		leaderAt      *time.Time
		sourceOrderID uuid.NullUUID
		sourceItemID  uuid.NullUUID
	)

	err := rows.Scan(
		&it.ID, &orderID, &it.Stt, &it.ProductName, &it.Size, &it.Unit, &it.Quantity, &warehouse,
		&it.CmQty, &it.CmQtyPerUnit, &it.Note,
		&whValue, &whConfirmedAt, &leaderValue, &leaderAt,
		&it.ShortageQty, &it.CompensatedQty, &status, &sourceOrderID, &sourceItemID,
	)
	if err != nil {
		return uuid.Nil, model.Item{}, err
	}

	it.Warehouse = model.Warehouse(warehouse)
	it.ShortageStatus = model.ShortageStatus(status)

	if whValue != nil {
		wc := &model.WarehouseConfirm{Value: validation.ParseConfirmValue(*whValue)}
		if whConfirmedAt != nil {
			wc.ConfirmedAt = *whConfirmedAt
		}
		it.WarehouseConfirm = wc
	}
	if leaderValue.Valid {
		lc := &model.LeaderConfirm{Value: leaderValue.Decimal}
		if leaderAt != nil {
			lc.ConfirmedAt = *leaderAt
		}
		it.LeaderConfirm = lc
	}
	if sourceOrderID.Valid {
		id := sourceOrderID.UUID
		it.SourceOrderID = &id
	}
	if sourceItemID.Valid {
		id := sourceItemID.UUID
		it.SourceItemID = &id
	}

	return orderID, it, nil
}

func writeItems(ctx context.Context, q querier, order *model.Order) error {
	if len(order.Items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for pos := range order.Items {
		b.Queue(
			`INSERT INTO order_items (`+itemColumns+`, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			itemArgs(order.ID, pos, &order.Items[pos])...,
		)
	}

	br := q.SendBatch(ctx, b)
	for range order.Items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

func itemArgs(orderID uuid.UUID, pos int, it *model.Item) []any {
	var (
		whValue     *string
		whAt        *time.Time
		leaderValue decimal.NullDecimal
		leaderAt    *time.Time
	)

	if it.WarehouseConfirm != nil {
		v, at := it.WarehouseConfirm.Value.Raw, it.WarehouseConfirm.ConfirmedAt
		whValue, whAt = &v, &at
	}
	if it.LeaderConfirm != nil {
		at := it.LeaderConfirm.ConfirmedAt
		leaderValue = decimal.NullDecimal{Decimal: it.LeaderConfirm.Value, Valid: true}
		leaderAt = &at
	}

	return []any{
		it.ID, orderID, it.Stt, it.ProductName, it.Size, it.Unit, it.Quantity, string(it.Warehouse),
		it.CmQty, it.CmQtyPerUnit, it.Note,
		whValue, whAt, leaderValue, leaderAt,
		it.ShortageQty, it.CompensatedQty, string(it.ShortageStatus),
		nullUUID(it.SourceOrderID), nullUUID(it.SourceItemID),
		pos,
	}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func orderWhere(f model.OrderFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if name := strings.TrimSpace(f.CustomerName); name != "" {
		add(`o.customer_name ILIKE '%%' || $%d || '%%'`, likeEscaper.Replace(name))
	}
	if f.CustomerCode != "" {
		add(`o.customer_code = $%d`, f.CustomerCode)
	}
	if f.VehicleID != "" {
		add(`o.vehicle_id = $%d`, f.VehicleID)
	}
	if f.Assigned != nil {
		if *f.Assigned {
			conds = append(conds, `o.vehicle_id IS NOT NULL`)
		} else {
			conds = append(conds, `o.vehicle_id IS NULL`)
		}
	}
	if f.CreatedBy != "" {
		add(`o.created_by = $%d`, f.CreatedBy)
	}
	if f.FromDate != nil {
		add(`o.order_date >= $%d`, *f.FromDate)
	}
	if f.ToDate != nil {
		add(`o.order_date <= $%d`, *f.ToDate)
	}
	if f.OpenShortageOnly {
		conds = append(conds, `EXISTS (SELECT 1 FROM order_items i
			WHERE i.order_id = o.id AND i.shortage_status = 'OPEN' AND i.shortage_qty > i.compensated_qty)`)
	}
	if f.LeaderConfirmedOnly {
		conds = append(conds, `EXISTS (SELECT 1 FROM order_items i
			WHERE i.order_id = o.id AND i.leader_confirm_value IS NOT NULL)`)
	}
	if f.Warehouse != "" {
		add(`EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.warehouse = $%d)`, string(f.Warehouse))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
