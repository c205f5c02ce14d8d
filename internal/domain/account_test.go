package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestAccount_Validate(t *testing.T) {
	member := uuid.New()

	tests := []struct {
		name    string
		account Account
		wantErr bool
		errMsg  string
	}{
		{
			name: "Asset account should pass",
			account: Account{
				ID:         uuid.New(),
				Code:       "1010",
				Name:       "Cash",
				Type:       AccountTypeAsset,
				NormalSide: SideDebit,
				Active:     true,
			},
			wantErr: false,
		},
		{
			name: "Book capital account with member should pass",
			account: Account{
				ID:         uuid.New(),
				Code:       "3100-M1",
				Name:       "Member Capital (Book)",
				Type:       AccountTypeEquity,
				NormalSide: SideCredit,
				Basis:      BasisBook,
				MemberID:   ptr(member),
				Active:     true,
			},
			wantErr: false,
		},
		{
			name: "Tax mirror account without member should pass",
			account: Account{
				ID:         uuid.New(),
				Code:       "1900",
				Name:       "Tax Basis Control",
				Type:       AccountTypeAsset,
				NormalSide: SideDebit,
				Basis:      BasisTax,
				Active:     true,
			},
			wantErr: false,
		},
		{
			name: "Book-basis account without member should fail",
			account: Account{
				ID:         uuid.New(),
				Code:       "3100",
				Name:       "Orphan Book Capital",
				Type:       AccountTypeEquity,
				NormalSide: SideCredit,
				Basis:      BasisBook,
				Active:     true,
			},
			wantErr: true,
			errMsg:  "book-basis account must belong to a member capital pair",
		},
		{
			name: "Account with empty name should fail",
			account: Account{
				ID:         uuid.New(),
				Code:       "1010",
				Name:       "",
				Type:       AccountTypeAsset,
				NormalSide: SideDebit,
			},
			wantErr: true,
			errMsg:  "account name cannot be empty",
		},
		{
			name: "Account with empty code should fail",
			account: Account{
				ID:         uuid.New(),
				Code:       "",
				Name:       "Cash",
				Type:       AccountTypeAsset,
				NormalSide: SideDebit,
			},
			wantErr: true,
			errMsg:  "account code cannot be empty",
		},
		{
			name: "Account with invalid type should fail",
			account: Account{
				ID:         uuid.New(),
				Code:       "9999",
				Name:       "Mystery",
				Type:       AccountType("CONTRA"),
				NormalSide: SideDebit,
			},
			wantErr: true,
			errMsg:  "account type must be",
		},
		{
			name: "Account with invalid basis should fail",
			account: Account{
				ID:         uuid.New(),
				Code:       "1010",
				Name:       "Cash",
				Type:       AccountTypeAsset,
				NormalSide: SideDebit,
				Basis:      Basis("GAAP"),
			},
			wantErr: true,
			errMsg:  "account basis must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalSideFor(t *testing.T) {
	assert.Equal(t, SideDebit, NormalSideFor(AccountTypeAsset))
	assert.Equal(t, SideDebit, NormalSideFor(AccountTypeExpense))
	assert.Equal(t, SideCredit, NormalSideFor(AccountTypeLiability))
	assert.Equal(t, SideCredit, NormalSideFor(AccountTypeEquity))
	assert.Equal(t, SideCredit, NormalSideFor(AccountTypeRevenue))
}

func TestAccount_BalanceWorld(t *testing.T) {
	assert.Equal(t, BasisBook, (&Account{Basis: BasisNone}).BalanceWorld())
	assert.Equal(t, BasisBook, (&Account{Basis: BasisBook}).BalanceWorld())
	assert.Equal(t, BasisTax, (&Account{Basis: BasisTax}).BalanceWorld())
}

func TestAccountTree_Descendants(t *testing.T) {
	root := uuid.New()
	childA := uuid.New()
	childB := uuid.New()
	grandchild := uuid.New()
	other := uuid.New()

	tree := NewAccountTree([]*Account{
		{ID: root, Code: "1000", Name: "Assets", Type: AccountTypeAsset, NormalSide: SideDebit},
		{ID: childA, Code: "1010", Name: "Cash", Type: AccountTypeAsset, NormalSide: SideDebit, ParentID: ptr(root)},
		{ID: childB, Code: "1020", Name: "Property", Type: AccountTypeAsset, NormalSide: SideDebit, ParentID: ptr(root)},
		{ID: grandchild, Code: "1021", Name: "Equipment", Type: AccountTypeAsset, NormalSide: SideDebit, ParentID: ptr(childB)},
		{ID: other, Code: "2000", Name: "Liabilities", Type: AccountTypeLiability, NormalSide: SideCredit},
	})

	desc := tree.Descendants(root)
	assert.ElementsMatch(t, []uuid.UUID{root, childA, childB, grandchild}, desc)
	assert.Equal(t, root, desc[0], "closure starts with the account itself")

	assert.ElementsMatch(t, []uuid.UUID{childA, grandchild}, tree.Leaves(root))
	assert.Equal(t, []uuid.UUID{other}, tree.Descendants(other))
	assert.False(t, tree.HasChildren(childA))
	assert.True(t, tree.HasChildren(childB))
}
