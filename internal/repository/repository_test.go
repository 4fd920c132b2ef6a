package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(db), mock
}

func TestProfileRepository_Debit(t *testing.T) {
	ctx := context.Background()

	t.Run("guarded update succeeds", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE `profiles` SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT `wallet_balance` FROM `profiles`").
			WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow(2000))

		balance, err := store.Profiles().Debit(ctx, 7, 3000)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance changes nothing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE `profiles` SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `profiles`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_balance"}).AddRow(7, 100))

		_, err := store.Profiles().Debit(ctx, 7, 3000)
		assert.ErrorIs(t, err, ErrBalanceNotEnough)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE `profiles` SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `profiles`").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.Profiles().Debit(ctx, 7, 3000)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileRepository_Credit(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `profiles`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_balance"}).AddRow(7, 500))
	mock.ExpectExec("UPDATE `profiles` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `wallet_balance` FROM `profiles`").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow(6500))

	balance, err := store.Profiles().Credit(context.Background(), 7, 6000)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateWithItems(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO `order_items`").WillReturnResult(sqlmock.NewResult(21, 2))

	order := &model.Order{
		OrderNo:          "ORD1",
		CustomerName:     "张三",
		CustomerEmail:    "zhangsan@example.com",
		TotalAmount:      20999,
		Status:           model.OrderStatusCompleted,
		SettlementStatus: model.SettlementStatusPending,
		Items: []model.OrderItem{
			{ProductID: 1, VendorID: 100, Title: "A", Quantity: 2, UnitPrice: 10000, CommissionAmount: 6000},
			{ProductID: 2, VendorID: 101, Title: "B", Quantity: 1, UnitPrice: 999, CommissionAmount: 150},
		},
	}
	require.NoError(t, store.Orders().CreateWithItems(context.Background(), order))

	assert.Equal(t, int64(11), order.ID)
	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, int64(11), item.OrderID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `orders`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'ORD1' for key 'order_no'"})

	err := store.Orders().CreateWithItems(context.Background(), &model.Order{
		OrderNo: "ORD1",
		Items:   []model.OrderItem{{ProductID: 1, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_TransitionSettlement(t *testing.T) {
	ctx := context.Background()
	from := []string{model.SettlementStatusPending, model.SettlementStatusPartial}

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `orders` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `orders` SET").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Orders().TransitionSettlement(ctx, "ORD1", from, model.SettlementStatusSettled, ""))
	err := store.Orders().TransitionSettlement(ctx, "ORD1", from, model.SettlementStatusSettled, "")
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByOrderNo(t *testing.T) {
	ctx := context.Background()

	t.Run("preloads items", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT \\* FROM `orders`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_no", "total_amount", "settlement_status"}).
				AddRow(11, "ORD1", 20000, model.SettlementStatusPartial))
		mock.ExpectQuery("SELECT \\* FROM `order_items`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "vendor_id", "quantity", "unit_price", "commission_amount"}).
				AddRow(21, 11, 1, 100, 2, 10000, 6000))

		order, err := store.Orders().GetByOrderNo(ctx, "ORD1")
		require.NoError(t, err)
		assert.Equal(t, model.SettlementStatusPartial, order.SettlementStatus)
		require.Len(t, order.Items, 1)
		assert.Equal(t, int64(14000), order.Items[0].VendorNet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.Orders().GetByOrderNo(ctx, "ORD404")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOrderRepository_ListUnsettled(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE settlement_status IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_no"}).AddRow(1, "ORD1").AddRow(2, "ORD2"))

	orders, err := store.Orders().ListUnsettled(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAffiliateLinkRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate code", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO `affiliate_links`").
			WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := store.Links().Create(ctx, &model.AffiliateLink{AffiliateID: 1, ProductID: 2, Code: "X", Active: true})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("counter update on missing link", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE `affiliate_links` SET").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Links().IncrementClicks(ctx, 99), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record conversion", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE `affiliate_links` SET").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Links().RecordConversion(ctx, 1, 6000))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup by code", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT \\* FROM `affiliate_links`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "affiliate_id", "product_id", "code", "active"}).
				AddRow(5, 200, 1, "ABC", true))

		link, err := store.Links().GetByCode(ctx, "ABC")
		require.NoError(t, err)
		assert.Equal(t, int64(200), link.AffiliateID)
		assert.True(t, link.Active)
	})
}

func TestTransactionRepository_SumSigned(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(CASE WHEN type = \\? THEN -amount ELSE amount END\\), 0\\) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4000))

	sum, err := store.Transactions().SumSignedByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusGuards(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	// 非法状态迁移不访问数据库
	assert.ErrorIs(t, store.Products().UpdateStatus(ctx, 1, model.ProductStatusApproved, model.ProductStatusPending), ErrStatusConflict)
	assert.ErrorIs(t, store.Withdrawals().UpdateStatus(ctx, "WDR1", model.WithdrawalStatusApproved, model.WithdrawalStatusRejected, 9, ""), ErrStatusConflict)

	mock.ExpectExec("UPDATE `withdrawals` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Withdrawals().UpdateStatus(ctx, "WDR1", model.WithdrawalStatusPending, model.WithdrawalStatusApproved, 9, "ok")
	assert.ErrorIs(t, err, ErrStatusConflict)

	mock.ExpectExec("UPDATE `products` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, store.Products().UpdateStatus(ctx, 1, model.ProductStatusPending, model.ProductStatusApproved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_RecordFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `outbox_message` SET `retry_count`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `outbox_message` SET `status`").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Outbox().RecordFailure(context.Background(), 3, 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransactionRollback(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.Transaction(context.Background(), func(tx *Store) error {
		if err := tx.Transactions().Create(context.Background(), &model.Transaction{
			TransactionNo: "TXN1",
			UserID:        7,
			Type:          model.TransactionTypeCommission,
			Amount:        6000,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
