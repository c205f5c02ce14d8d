package seeder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/adapter/repository/memory"
	"github.com/coopledger/coopledger/internal/domain"
)

func TestSeed_CreatesSystemChart(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, NewChartSeeder(store.Accounts()).Seed(ctx))

	accounts, err := store.Accounts().List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 13)

	cash, err := store.Accounts().GetByCode(ctx, domain.CodeCash)
	require.NoError(t, err)
	assert.Equal(t, SysCash, cash.ID)
	assert.Equal(t, domain.AccountTypeAsset, cash.Type)
	assert.Equal(t, domain.SideDebit, cash.NormalSide)
	require.NotNil(t, cash.ParentID)
	assert.Equal(t, SysAssets, *cash.ParentID)
	assert.True(t, cash.Active)

	revenue, err := store.Accounts().GetByCode(ctx, domain.CodeMemberRevenue)
	require.NoError(t, err)
	assert.Equal(t, domain.SideCredit, revenue.NormalSide)

	// The tax world accounts sit outside the book hierarchy so no rollup
	// ever mixes the two basis worlds.
	taxCapital, err := store.Accounts().GetByCode(ctx, domain.CodeTaxCapital)
	require.NoError(t, err)
	assert.Equal(t, domain.BasisTax, taxCapital.Basis)
	assert.Nil(t, taxCapital.ParentID)
	control, err := store.Accounts().GetByCode(ctx, domain.CodeTaxBasisControl)
	require.NoError(t, err)
	assert.Equal(t, domain.BasisTax, control.Basis)
	assert.Nil(t, control.ParentID)
}

func TestSeed_LeavesExistingAccountsAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seeder := NewChartSeeder(store.Accounts())
	require.NoError(t, seeder.Seed(ctx))

	// An operator renamed an account; a restart re-seeds without undoing it.
	cash, err := store.Accounts().GetByCode(ctx, domain.CodeCash)
	require.NoError(t, err)
	cash.Name = "Cash and Equivalents"
	require.NoError(t, store.Accounts().Update(ctx, cash))

	require.NoError(t, seeder.Seed(ctx))

	accounts, err := store.Accounts().List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 13, "re-seeding never duplicates")
	cash, err = store.Accounts().GetByCode(ctx, domain.CodeCash)
	require.NoError(t, err)
	assert.Equal(t, "Cash and Equivalents", cash.Name)
}
