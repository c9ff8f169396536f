package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{DB: sqlx.NewDb(db, "sqlmock")}, mock
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "img_path", "price", "stock", "version"})
}

func TestGetProduct_SuccessAndNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, description, img_path, price, stock, version FROM products WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(productRows().AddRow(int64(7), "lamp", "desk lamp", "/img/7.png", "49.99", 5, int64(3)))

	p, err := s.GetProduct(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.ID != 7 || p.Stock != 5 || p.Version != 3 {
		t.Fatalf("unexpected product row: %+v", p)
	}
	if !p.Price.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected price: %v", p.Price)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, description, img_path, price, stock, version FROM products WHERE id = $1`)).
		WithArgs(int64(999)).
		WillReturnRows(productRows())

	if _, err := s.GetProduct(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSearchProducts_PagingAndSort(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM products`).
		WithArgs("lamp").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	mock.ExpectQuery(`SELECT id, title, .+ FROM products.+ORDER BY title LIMIT \$2 OFFSET \$3`).
		WithArgs("lamp", 10, 10).
		WillReturnRows(productRows().
			AddRow(int64(1), "lamp a", "", "", "10.00", 3, int64(1)).
			AddRow(int64(2), "lamp b", "", "", "20.00", 0, int64(4)))

	items, total, err := s.SearchProducts(context.Background(), "lamp", SortByTitle, 2, 10)
	if err != nil {
		t.Fatalf("SearchProducts failed: %v", err)
	}
	if total != 12 || len(items) != 2 {
		t.Fatalf("unexpected result: total=%d items=%d", total, len(items))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStock_BumpsVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE products SET stock = $1, version = version + 1 WHERE id = $2`)).
		WithArgs(10, int64(3)).
		WillReturnRows(productRows().AddRow(int64(3), "mug", "", "", "5.50", 10, int64(8)))

	p, err := s.UpdateStock(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("UpdateStock failed: %v", err)
	}
	if p.Version != 8 || p.Stock != 10 {
		t.Fatalf("unexpected row after restock: %+v", p)
	}

	// unknown product -> ErrNotFound
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE products SET stock = $1, version = version + 1 WHERE id = $2`)).
		WithArgs(1, int64(404)).
		WillReturnRows(productRows())

	if _, err := s.UpdateStock(context.Background(), 404, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddCartItem_Upsert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_items (session_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (session_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + 1`)).
		WithArgs("s1", int64(10)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.AddCartItem(context.Background(), "s1", 10); err != nil {
		t.Fatalf("AddCartItem failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemoveCartItem_NoRowsAndSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`)).
		WithArgs("s1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.RemoveCartItem(context.Background(), "s1", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`)).
		WithArgs("s1", int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.RemoveCartItem(context.Background(), "s1", 5); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecrementCartItem_DeletesAtOne(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM cart_items WHERE session_id = $1 AND product_id = $2 FOR UPDATE`)).
		WithArgs("s1", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`)).
		WithArgs("s1", int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.DecrementCartItem(context.Background(), "s1", 5); err != nil {
		t.Fatalf("DecrementCartItem failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetCart_JoinsProducts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT ci.product_id, p.title, p.price, ci.quantity`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "title", "price", "quantity"}).
			AddRow(int64(11), "lamp", "10.00", 2).
			AddRow(int64(12), "mug", "5.00", 1))

	got, err := s.GetCart(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(got) != 2 || got[0].ProductID != 11 || got[0].Quantity != 2 {
		t.Fatalf("unexpected cart rows: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
