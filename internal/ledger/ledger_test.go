package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bank  domain.Address = "rwanda-central-bank"
	alice domain.Address = "alice"
	bob   domain.Address = "bob"
	carol domain.Address = "carol"
)

func amt(v int64) *big.Int { return big.NewInt(v) }

func newTestLedger(t *testing.T) (*Ledger, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	l, err := New(Config{Code: "RWFC", Name: "Rwandan Franc Coin", Authority: bank}, rec)
	require.NoError(t, err)
	return l, rec
}

func requireConserved(t *testing.T, l *Ledger) {
	t.Helper()
	require.NoError(t, l.Audit())
}

func TestNew_GrantsAuthorityRoles(t *testing.T) {
	l, _ := newTestLedger(t)

	assert.True(t, l.HasRole(domain.RoleAdmin, bank))
	assert.True(t, l.HasRole(domain.RoleMinter, bank))
	assert.True(t, l.HasRole(domain.RoleBurner, bank))
	assert.Equal(t, uint8(18), l.Decimals())
	assert.Equal(t, "Rwandan Franc Coin", l.Name())
	assert.Equal(t, "0", l.TotalSupply().String())
}

func TestNew_RejectsZeroAuthority(t *testing.T) {
	_, err := New(Config{Code: "RWFC"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = New(Config{Authority: bank}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestMint(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Mint(bank, alice, amt(1000)))
	requireConserved(t, l)

	assert.Equal(t, "1000", l.BalanceOf(alice).String())
	assert.Equal(t, "1000", l.TotalSupply().String())

	minted := rec.OfType(events.LedgerMint)
	require.Len(t, minted, 1)
	assert.Equal(t, events.MintPayload{To: "alice", Amount: "1000"}, minted[0].Payload)
	assert.Equal(t, "ledger:RWFC", minted[0].Source)
}

func TestMint_Failures(t *testing.T) {
	l, rec := newTestLedger(t)

	tests := []struct {
		name   string
		caller domain.Address
		to     domain.Address
		amount *big.Int
		want   error
	}{
		{"non minter", alice, alice, amt(10), domain.ErrUnauthorized},
		{"zero amount", bank, alice, amt(0), domain.ErrInvalidAmount},
		{"nil amount", bank, alice, nil, domain.ErrInvalidAmount},
		{"negative amount", bank, alice, amt(-1), domain.ErrInvalidAmount},
		{"zero recipient", bank, "", amt(10), domain.ErrInvalidAccount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := l.Mint(tc.caller, tc.to, tc.amount)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, "0", l.TotalSupply().String())
			requireConserved(t, l)
		})
	}
	assert.Empty(t, rec.Events())
}

func TestTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))

	require.NoError(t, l.Transfer(alice, bob, amt(40)))
	requireConserved(t, l)
	assert.Equal(t, "60", l.BalanceOf(alice).String())
	assert.Equal(t, "40", l.BalanceOf(bob).String())
	assert.Equal(t, "100", l.TotalSupply().String())

	err := l.Transfer(alice, bob, amt(61))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "60", l.BalanceOf(alice).String())

	assert.ErrorIs(t, l.Transfer(alice, bob, amt(0)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(alice, "", amt(1)), domain.ErrInvalidAccount)
	requireConserved(t, l)
}

func TestTransfer_ToSelfKeepsBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(5)))

	require.NoError(t, l.Transfer(alice, alice, amt(5)))
	assert.Equal(t, "5", l.BalanceOf(alice).String())
	requireConserved(t, l)
}

func TestApproveAndTransferFrom(t *testing.T) {
	l, rec := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))

	require.NoError(t, l.Approve(alice, bob, amt(30)))
	assert.Equal(t, "30", l.Allowance(alice, bob).String())

	// Absolute set, not additive.
	require.NoError(t, l.Approve(alice, bob, amt(50)))
	assert.Equal(t, "50", l.Allowance(alice, bob).String())

	err := l.TransferFrom(bob, alice, carol, amt(51))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	require.NoError(t, l.TransferFrom(bob, alice, carol, amt(20)))
	requireConserved(t, l)
	assert.Equal(t, "30", l.Allowance(alice, bob).String())
	assert.Equal(t, "80", l.BalanceOf(alice).String())
	assert.Equal(t, "20", l.BalanceOf(carol).String())

	require.NoError(t, l.Approve(alice, bob, amt(1000)))
	err = l.TransferFrom(bob, alice, carol, amt(81))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "1000", l.Allowance(alice, bob).String())

	assert.Len(t, rec.OfType(events.LedgerApproval), 3)
}

func TestBurn_Self(t *testing.T) {
	l, rec := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))

	require.NoError(t, l.Burn(alice, amt(40)))
	requireConserved(t, l)
	assert.Equal(t, "60", l.BalanceOf(alice).String())
	assert.Equal(t, "60", l.TotalSupply().String())

	assert.ErrorIs(t, l.Burn(alice, amt(61)), domain.ErrInsufficientBalance)
	assert.ErrorIs(t, l.Burn(alice, amt(0)), domain.ErrInvalidAmount)

	burned := rec.OfType(events.LedgerBurn)
	require.Len(t, burned, 1)
	assert.Equal(t, events.BurnPayload{From: "alice", Amount: "40"}, burned[0].Payload)
}

func TestBurnFrom_IgnoresAllowance(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))

	require.NoError(t, l.BurnFrom(bank, alice, amt(70)))
	requireConserved(t, l)
	assert.Equal(t, "30", l.BalanceOf(alice).String())
	assert.Equal(t, "30", l.TotalSupply().String())

	err := l.BurnFrom(bob, alice, amt(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "30", l.BalanceOf(alice).String())
}

func TestPause_BlocksValueMovement(t *testing.T) {
	l, rec := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))
	require.NoError(t, l.Approve(alice, bob, amt(50)))

	require.NoError(t, l.Pause(bank))
	assert.True(t, l.Paused())

	assert.ErrorIs(t, l.Transfer(alice, bob, amt(1)), domain.ErrSystemPaused)
	assert.ErrorIs(t, l.TransferFrom(bob, alice, bob, amt(1)), domain.ErrSystemPaused)
	assert.ErrorIs(t, l.Mint(bank, alice, amt(1)), domain.ErrSystemPaused)
	assert.ErrorIs(t, l.Burn(alice, amt(1)), domain.ErrSystemPaused)
	assert.ErrorIs(t, l.BurnFrom(bank, alice, amt(1)), domain.ErrSystemPaused)

	// Approvals move no value and stay available.
	require.NoError(t, l.Approve(alice, bob, amt(10)))

	assert.ErrorIs(t, l.Pause(bank), domain.ErrAlreadyInState)

	require.NoError(t, l.Unpause(bank))
	assert.ErrorIs(t, l.Unpause(bank), domain.ErrAlreadyInState)
	assert.Equal(t, "100", l.BalanceOf(alice).String())
	require.NoError(t, l.Transfer(alice, bob, amt(1)))
	requireConserved(t, l)

	assert.Len(t, rec.OfType(events.LedgerPaused), 1)
	assert.Len(t, rec.OfType(events.LedgerUnpaused), 1)
}

func TestPause_RequiresAdmin(t *testing.T) {
	l, _ := newTestLedger(t)

	assert.ErrorIs(t, l.Pause(alice), domain.ErrUnauthorized)
	assert.False(t, l.Paused())
}

func TestRoles(t *testing.T) {
	l, rec := newTestLedger(t)

	assert.ErrorIs(t, l.GrantRole(alice, domain.RoleMinter, alice), domain.ErrUnauthorized)

	require.NoError(t, l.GrantRole(bank, domain.RoleMinter, alice))
	require.NoError(t, l.Mint(alice, bob, amt(7)))

	require.NoError(t, l.RevokeRole(bank, domain.RoleMinter, alice))
	assert.ErrorIs(t, l.Mint(alice, bob, amt(7)), domain.ErrUnauthorized)

	assert.ErrorIs(t, l.GrantRole(bank, domain.RoleFeeManager, alice), domain.ErrInvalidRole)

	assert.Len(t, rec.OfType(events.LedgerRoleGranted), 1)
	assert.Len(t, rec.OfType(events.LedgerRoleRevoked), 1)
	assert.Equal(t, "7", l.TotalSupply().String())
}

func TestAtomic_CommitsAllOrNothing(t *testing.T) {
	rwfc, _ := newTestLedger(t)
	ekes, err := New(Config{Code: "eKES", Authority: "kenya-central-bank"}, nil)
	require.NoError(t, err)
	require.NoError(t, rwfc.Mint(bank, alice, amt(100)))

	boom := errors.New("boom")
	err = Atomic(func(txs []*Tx) error {
		if err := txs[0].Burn(alice, amt(50)); err != nil {
			return err
		}
		if err := txs[1].Mint("kenya-central-bank", bob, amt(50)); err != nil {
			return err
		}
		return boom
	}, rwfc, ekes)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "100", rwfc.TotalSupply().String())
	assert.Equal(t, "0", ekes.TotalSupply().String())

	err = Atomic(func(txs []*Tx) error {
		if err := txs[0].Mint("kenya-central-bank", bob, amt(50)); err != nil {
			return err
		}
		return txs[1].Burn(alice, amt(50))
	}, ekes, rwfc)
	require.NoError(t, err)
	assert.Equal(t, "50", rwfc.TotalSupply().String())
	assert.Equal(t, "50", ekes.BalanceOf(bob).String())
	requireConserved(t, rwfc)
	requireConserved(t, ekes)
}

func TestAtomic_StagedReadsSeeEarlierSteps(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(10)))

	err := Atomic(func(txs []*Tx) error {
		if err := txs[0].Transfer(alice, bob, amt(10)); err != nil {
			return err
		}
		assert.Equal(t, "10", txs[0].BalanceOf(bob).String())
		return txs[0].Burn(bob, amt(10))
	}, l)
	require.NoError(t, err)
	assert.Equal(t, "0", l.TotalSupply().String())
	requireConserved(t, l)
}

func TestAtomic_RejectsDuplicateLedgers(t *testing.T) {
	l, _ := newTestLedger(t)
	err := Atomic(func([]*Tx) error { return nil }, l, l)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestConcurrentTransfersConserveSupply(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(1000)))
	require.NoError(t, l.Mint(bank, bob, amt(1000)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Transfer(alice, bob, amt(3))
		}()
		go func() {
			defer wg.Done()
			_ = l.Transfer(bob, alice, amt(5))
		}()
	}
	wg.Wait()

	requireConserved(t, l)
	total := new(big.Int).Add(l.BalanceOf(alice), l.BalanceOf(bob))
	assert.Equal(t, "2000", total.String())
}

func TestSnapshotIsACopy(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(10)))

	snap := l.Snapshot()
	snap.Balances[alice].SetInt64(999)
	assert.Equal(t, "10", l.BalanceOf(alice).String())
	assert.Equal(t, "10", snap.Supply.String())
}

func TestCommit_UnbalancedOverlayPanicsBeforeApplying(t *testing.T) {
	cases := []struct {
		name  string
		stage func(tx *Tx)
	}{
		{name: "credit without supply change", stage: func(tx *Tx) {
			tx.credit(bob, amt(5))
		}},
		{name: "supply change without balances", stage: func(tx *Tx) {
			tx.supplyDelta.Add(tx.supplyDelta, amt(5))
		}},
		{name: "negative balance", stage: func(tx *Tx) {
			tx.balances[alice] = amt(-1)
			tx.supplyDelta.Sub(tx.supplyDelta, amt(101))
		}},
		{name: "negative allowance", stage: func(tx *Tx) {
			tx.allowances[allowanceKey{alice, bob}] = amt(-1)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, rec := newTestLedger(t)
			require.NoError(t, l.Mint(bank, alice, amt(100)))
			before := len(rec.Events())

			assert.Panics(t, func() {
				_ = l.update(func(tx *Tx) error {
					tc.stage(tx)
					tx.emit(events.LedgerTransfer, nil)
					return nil
				})
			})

			assert.Equal(t, "100", l.BalanceOf(alice).String())
			assert.Equal(t, "0", l.BalanceOf(bob).String())
			assert.Equal(t, "100", l.TotalSupply().String())
			assert.Equal(t, "0", l.Allowance(alice, bob).String())
			assert.Len(t, rec.Events(), before)
			requireConserved(t, l)
		})
	}
}

func TestCommit_OnlyInspectsTouchedAccounts(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Mint(bank, alice, amt(100)))

	// Corrupt an account no transaction below touches.
	l.mu.Lock()
	l.balances[carol] = amt(7)
	l.mu.Unlock()

	require.NoError(t, l.Transfer(alice, bob, amt(40)))
	assert.Equal(t, "60", l.BalanceOf(alice).String())
	assert.Equal(t, "40", l.BalanceOf(bob).String())

	assert.ErrorIs(t, l.Audit(), domain.ErrInvariantViolated)
}

func TestMint_ManyAccountsStaysLinear(t *testing.T) {
	if testing.Short() {
		t.Skip("funds a large ledger")
	}
	l, err := New(Config{Code: "RWFC", Authority: bank}, nil)
	require.NoError(t, err)

	const accounts = 100_000
	for i := 0; i < accounts; i++ {
		require.NoError(t, l.Mint(bank, domain.Address(fmt.Sprintf("acct-%d", i)), amt(1)))
	}
	require.NoError(t, l.Transfer("acct-0", "acct-1", amt(1)))

	assert.Equal(t, big.NewInt(accounts), l.TotalSupply())
	requireConserved(t, l)
}
