package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bucketshare/bucketshare-backend/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)
	var before int64
	if err := db.Model(&testModel{}).Count(&before).Error; err != nil {
		t.Fatalf("count: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("ledger invariant broken")
		})
	}()

	var after int64
	if err := db.Model(&testModel{}).Count(&after).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if after != before {
		t.Fatalf("expected rollback, rows went from %d to %d", before, after)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite}, nil); err == nil {
		t.Fatal("expected error without dsn")
	}
}

func TestNewOpensSQLite(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite, DSN: "file::memory:"}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()
	if !client.IsSQLite() {
		t.Fatal("expected sqlite driver")
	}
	var fk int
	if err := client.DB().Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", fk)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: bucket_invites.bucket_id"), "") {
		t.Fatal("expected sqlite unique violation to match")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "uq_support_open"`), "uq_support_open") {
		t.Fatal("expected named constraint to match")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "uq_bucket_invites_pending"}, "uq_bucket_invites_pending") {
		t.Fatal("expected postgres constraint to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "uq_users_connect_account_id"}, "uq_bucket_invites_pending") {
		t.Fatal("other constraint should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("unrelated error should not match")
	}
}

func TestNewFromConnReportsDriver(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if !client.IsSQLite() {
		t.Fatal("expected sqlite driver")
	}
}
