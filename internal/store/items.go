package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/bazar/internal/model"
)

const itemColumns = `i.id, i.seller_id, i.name, i.description, i.price_paise, i.category, i.status,
	i.reserved_by, i.reserved_at, i.image_mime, i.created_at, i.updated_at, i.deleted_at,
	u.first_name || ' ' || u.last_name, u.email, u.contact_number`

const itemFrom = ` FROM items i JOIN users u ON u.id = i.seller_id`

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{}
	var pricePaise int64
	var imageMime sql.NullString
	err := row.Scan(&item.ID, &item.SellerID, &item.Name, &item.Description, &pricePaise, &item.Category, &item.Status,
		&item.ReservedBy, &item.ReservedAt, &imageMime, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt,
		&item.SellerName, &item.SellerEmail, &item.SellerContact)
	if err != nil {
		return nil, err
	}
	item.Price = model.FromPaise(pricePaise)
	item.ImageMime = imageMime.String
	return item, nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CreateItem lists a new item for sale.
func CreateItem(ctx context.Context, db *sql.DB, sellerID int64, name, description string, price decimal.Decimal, category string) (*model.Item, error) {
	paise, err := model.ToPaise(price)
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (seller_id, name, description, price_paise, category) VALUES (?, ?, ?, ?, ?)`,
		sellerID, name, description, paise, category,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including soft-deleted items.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+itemFrom+` WHERE i.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListAvailableItems returns available, non-deleted items matching the filter,
// newest first.
func ListAvailableItems(ctx context.Context, db *sql.DB, f model.ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + itemFrom + `
	          WHERE i.deleted_at IS NULL AND i.status = 'available'`
	var args []any

	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		query += ` AND (LOWER(i.name) LIKE ? ESCAPE '\' OR LOWER(i.description) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	if len(f.Categories) > 0 {
		query += ` AND i.category IN (?` + strings.Repeat(", ?", len(f.Categories)-1) + `)`
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.MinPrice != nil {
		query += ` AND i.price_paise >= ?`
		args = append(args, f.MinPrice.Shift(2).Ceil().IntPart())
	}
	if f.MaxPrice != nil {
		query += ` AND i.price_paise <= ?`
		args = append(args, f.MaxPrice.Shift(2).Floor().IntPart())
	}

	query += ` ORDER BY i.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListItemsBySeller returns a seller's non-deleted items in every status.
func ListItemsBySeller(ctx context.Context, db *sql.DB, sellerID int64) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+itemFrom+`
		 WHERE i.seller_id = ? AND i.deleted_at IS NULL ORDER BY i.id DESC`, sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing seller items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ownItem loads a live item and checks that sellerID owns it.
func ownItem(ctx context.Context, db *sql.DB, id, sellerID int64) (*model.Item, error) {
	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if item == nil || item.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if item.SellerID != sellerID {
		return nil, ErrForbidden
	}
	return item, nil
}

// UpdateItem edits a listing's descriptive fields. Status is owned by the
// order workflow and never changes here. Sold items are frozen.
func UpdateItem(ctx context.Context, db *sql.DB, id, sellerID int64, name, description string, price decimal.Decimal, category string) (*model.Item, error) {
	if _, err := ownItem(ctx, db, id, sellerID); err != nil {
		return nil, err
	}

	paise, err := model.ToPaise(price)
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, price_paise = ?, category = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND status <> 'sold'`,
		name, description, paise, category, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	if err := expectRow(result, ErrItemLocked); err != nil {
		return nil, err
	}

	return GetItem(ctx, db, id)
}

// DeleteItem soft-deletes a listing. Only available items can be deleted, since
// reserved and sold items are referenced by orders.
func DeleteItem(ctx context.Context, db *sql.DB, id, sellerID int64) error {
	if _, err := ownItem(ctx, db, id, sellerID); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND status = 'available'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if err := expectRow(result, ErrItemLocked); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("removing deleted item from carts: %w", err)
	}
	return nil
}

// SetItemImage sets a listing's image data.
func SetItemImage(ctx context.Context, db *sql.DB, id, sellerID int64, image []byte, mime string) error {
	if _, err := ownItem(ctx, db, id, sellerID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
