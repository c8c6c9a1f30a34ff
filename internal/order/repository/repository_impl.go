package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/order/domain"
	"github.com/rangefront/armory/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order, lines []domain.OrderLine) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, user_id, total_price, status, hold_reason, ffl_required, ffl_status,
			ffl_dealer_id, firearms_window_count, window_days, limit_qty,
			payment_transaction_id, distributor_order_number, external_deal_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.TotalPrice,
		order.Status,
		order.HoldReason,
		order.FFLRequired,
		order.FFLStatus,
		order.FFLDealerID,
		order.FirearmsWindowCount,
		order.WindowDays,
		order.LimitQty,
		order.PaymentTransactionID,
		order.DistributorOrderNumber,
		order.ExternalDealID,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if err != nil {
		return err
	}

	for _, line := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_lines (
				id, order_id, product_id, name, sku, quantity, unit_price,
				total_price, is_firearm, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.OrderID,
			line.ProductID,
			line.Name,
			line.SKU,
			line.Quantity,
			line.UnitPrice,
			line.TotalPrice,
			line.IsFirearm,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	stmt := db.WithContext(ctx)
	if stmt.Dialector.Name() == "sqlite" {
		// sqlite serializes writers itself and rejects FOR UPDATE.
		stmt = stmt.Raw(`SELECT * FROM orders WHERE id = ?`, id)
	} else {
		stmt = stmt.Raw(`SELECT * FROM orders WHERE id = ? FOR UPDATE`, id)
	}
	if err := stmt.Scan(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_lines WHERE order_id = ? ORDER BY id`,
		orderID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, page pagination.Pagination) ([]*domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.CreatedAt != "" && cursor.ID != "" {
			stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 25
	}

	var orders []*domain.Order
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) SumFirearmQuantityInWindow(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) (int, error) {
	var total int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(l.quantity), 0)
		 FROM order_lines l
		 JOIN orders o ON o.id = l.order_id
		 WHERE o.user_id = ?
		   AND l.is_firearm = ?
		   AND o.status IN ?
		   AND o.created_at >= ?`,
		userID,
		true,
		domain.WindowQualifyingStatuses,
		since,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.OrderStatus, holdReason domain.HoldReason, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, hold_reason = ?, updated_at = ? WHERE id = ?`,
		status,
		holdReason,
		now,
		id,
	).Error
}

func (r *repo) SetDistributorResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.OrderStatus, distributorOrderNumber string, now time.Time) error {
	if distributorOrderNumber == "" {
		return db.WithContext(ctx).Exec(
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
			status, now, id,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, distributor_order_number = ?, updated_at = ? WHERE id = ?`,
		status, distributorOrderNumber, now, id,
	).Error
}

func (r *repo) SetExternalDealID(ctx context.Context, db *gorm.DB, id snowflake.ID, dealID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET external_deal_id = ?, updated_at = ? WHERE id = ?`,
		dealID, now, id,
	).Error
}

func (r *repo) SetFFLResolution(ctx context.Context, db *gorm.DB, id snowflake.ID, dealerID snowflake.ID, fflStatus domain.FFLStatus, status domain.OrderStatus, holdReason domain.HoldReason, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET ffl_dealer_id = ?, ffl_status = ?, status = ?, hold_reason = ?, updated_at = ?
		 WHERE id = ?`,
		dealerID, fflStatus, status, holdReason, now, id,
	).Error
}

func (r *repo) AddNote(ctx context.Context, db *gorm.DB, note *domain.OrderNote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_notes (id, order_id, note, created_at) VALUES (?, ?, ?, ?)`,
		note.ID,
		note.OrderID,
		note.Note,
		note.CreatedAt,
	).Error
}
