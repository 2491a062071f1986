package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositories(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepositories())
}

func TestMemoryList_OrderAndPaging(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()

	var created []string
	for i := 0; i < 5; i++ {
		txn := newTier2Txn()
		txn.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repos.Transactions.Create(ctx, txn))
		created = append(created, txn.ID)
	}

	pending := domain.TransactionStatusPending
	list, total, err := repos.Transactions.List(ctx, &domain.TransactionFilter{Status: &pending, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []string{created[3], created[2]}, ids(list))

	list, total, err = repos.Transactions.List(ctx, &domain.TransactionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, list)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()

	txn := newTier2Txn()
	require.NoError(t, repos.Transactions.Create(ctx, txn))

	got, err := repos.Transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	approve(got, domain.RoleOperations, "ops-1")

	again, err := repos.Transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, again.Approvals[domain.RoleOperations].Status)
}
